package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis layout, all under the configured prefix:
//
//	hash:<key_hash>    -> device_id
//	device:<device_id> -> HASH name, key_hash, last_rotated, created_at
//	name:<name>        -> device_id
//	devices            -> SET of device_id
//
// Every mutation runs as a Lua script so the hash index and the device
// record change together. The lookup and replace scripts derive the device
// key from the stored device_id, so they touch keys not passed in KEYS.
// That rules out Redis Cluster; the store takes a single-node *redis.Client
// (standalone or Sentinel failover).

const createDeviceScript = `
local hash_key = KEYS[1]
local device_key = KEYS[2]
local name_key = KEYS[3]
local set_key = KEYS[4]

if redis.call("EXISTS", name_key) == 1 or redis.call("EXISTS", hash_key) == 1 then
  return 0
end

redis.call("SET", hash_key, ARGV[1])
redis.call("HSET", device_key, "name", ARGV[2], "key_hash", ARGV[3], "last_rotated", ARGV[4], "created_at", ARGV[5])
redis.call("SET", name_key, ARGV[1])
redis.call("SADD", set_key, ARGV[1])
return 1
`

const findKeyScript = `
local device_id = redis.call("GET", KEYS[1])
if not device_id then
  return false
end

local fields = redis.call("HMGET", ARGV[1] .. device_id, "name", "key_hash", "last_rotated", "created_at")
return {device_id, fields[1], fields[2], fields[3], fields[4]}
`

const replaceKeyScript = `
local old_key = KEYS[1]
local new_key = KEYS[2]

local device_id = redis.call("GET", old_key)
if not device_id then
  return 0
end

redis.call("DEL", old_key)
redis.call("SET", new_key, device_id)
redis.call("HSET", ARGV[1] .. device_id, "key_hash", ARGV[2], "last_rotated", ARGV[3])
return 1
`

var (
	createDeviceLua = redis.NewScript(createDeviceScript)
	findKeyLua      = redis.NewScript(findKeyScript)
	replaceKeyLua   = redis.NewScript(replaceKeyScript)
)

// RedisKeyStore implements KeyStore on Redis.
type RedisKeyStore struct {
	client *redis.Client
	prefix string
}

// NewRedisKeyStore creates a key store using client. prefix namespaces
// every key, e.g. "hydroconnect:devicekey:".
func NewRedisKeyStore(client *redis.Client, prefix string) *RedisKeyStore {
	return &RedisKeyStore{client: client, prefix: prefix}
}

// HealthCheck pings Redis.
func (s *RedisKeyStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis key store health check: %w", err)
	}
	return nil
}

func (s *RedisKeyStore) hashKey(keyHash string) string { return s.prefix + "hash:" + keyHash }
func (s *RedisKeyStore) devicePrefix() string         { return s.prefix + "device:" }
func (s *RedisKeyStore) deviceKey(id string) string    { return s.devicePrefix() + id }
func (s *RedisKeyStore) nameKey(name string) string    { return s.prefix + "name:" + name }
func (s *RedisKeyStore) setKey() string                { return s.prefix + "devices" }

// Create registers a device with its first key hash. The device ID is
// generated if empty.
func (s *RedisKeyStore) Create(ctx context.Context, key *DeviceKey) error {
	if key.DeviceID == "" {
		key.DeviceID = "dev-" + uuid.NewString()[:8]
	}
	key.CreatedAt = time.Now().UTC().Truncate(time.Second)

	created, err := createDeviceLua.Run(ctx, s.client,
		[]string{s.hashKey(key.KeyHash), s.deviceKey(key.DeviceID), s.nameKey(key.Name), s.setKey()},
		key.DeviceID, key.Name, key.KeyHash, key.LastRotated.Format(DateLayout), key.CreatedAt.Format(time.RFC3339),
	).Int()
	if err != nil {
		return fmt.Errorf("creating device key: %w", err)
	}
	if created == 0 {
		return ErrDeviceExists
	}
	return nil
}

// FindActiveKey returns the device whose current key hashes to keyHash.
func (s *RedisKeyStore) FindActiveKey(ctx context.Context, keyHash string) (*DeviceKey, error) {
	vals, err := findKeyLua.Run(ctx, s.client, []string{s.hashKey(keyHash)}, s.devicePrefix()).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("finding device key: %w", err)
	}
	return deviceKeyFromFields(vals)
}

// ReplaceKey moves the device from oldHash to newHash atomically. If oldHash
// is no longer active it returns ErrKeyNotFound and changes nothing.
func (s *RedisKeyStore) ReplaceKey(ctx context.Context, oldHash, newHash string, rotated time.Time) error {
	replaced, err := replaceKeyLua.Run(ctx, s.client,
		[]string{s.hashKey(oldHash), s.hashKey(newHash)},
		s.devicePrefix(), newHash, rotated.Format(DateLayout),
	).Int()
	if err != nil {
		return fmt.Errorf("replacing device key: %w", err)
	}
	if replaced == 0 {
		return ErrKeyNotFound
	}
	return nil
}

// List returns all registered devices ordered by name.
func (s *RedisKeyStore) List(ctx context.Context) ([]DeviceKey, error) {
	ids, err := s.client.SMembers(ctx, s.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("listing device keys: %w", err)
	}

	keys := make([]DeviceKey, 0, len(ids))
	for _, id := range ids {
		fields, err := s.client.HMGet(ctx, s.deviceKey(id), "name", "key_hash", "last_rotated", "created_at").Result()
		if err != nil {
			return nil, fmt.Errorf("reading device %s: %w", id, err)
		}

		vals := []string{id}
		for _, f := range fields {
			v, _ := f.(string) //nolint:errcheck // missing fields decode as ""
			vals = append(vals, v)
		}
		key, err := deviceKeyFromFields(vals)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *key)
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys, nil
}

// deviceKeyFromFields decodes {device_id, name, key_hash, last_rotated, created_at}.
func deviceKeyFromFields(vals []string) (*DeviceKey, error) {
	if len(vals) != 5 { //nolint:mnd // device_id plus four hash fields
		return nil, fmt.Errorf("decoding device key: got %d fields", len(vals))
	}

	lastRotated, err := time.Parse(DateLayout, vals[3])
	if err != nil {
		return nil, fmt.Errorf("parsing last_rotated %q for %s: %w", vals[3], vals[0], err)
	}
	createdAt, _ := time.Parse(time.RFC3339, vals[4]) //nolint:errcheck // format is controlled

	return &DeviceKey{
		DeviceID:    vals[0],
		Name:        vals[1],
		KeyHash:     vals[2],
		LastRotated: lastRotated,
		CreatedAt:   createdAt,
	}, nil
}
