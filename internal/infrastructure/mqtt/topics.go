package mqtt

import "fmt"

// TopicPrefix is the root of every Hydroconnect topic.
const TopicPrefix = "hydroconnect"

// Topics builds Hydroconnect MQTT topic names.
//
//	hydroconnect/system/status                    retained online/offline (LWT)
//	hydroconnect/usage/{sink_id}                  one message per stored usage session
//	hydroconnect/device/{device_id}/key-rotated   rotation notice, never the key
type Topics struct{}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", TopicPrefix)
}

// Usage is where a sink's water usage sessions are published.
func (Topics) Usage(sinkID int64) string {
	return fmt.Sprintf("%s/usage/%d", TopicPrefix, sinkID)
}

// DeviceKeyRotated announces that a device hub received a new key.
func (Topics) DeviceKeyRotated(deviceID string) string {
	return fmt.Sprintf("%s/device/%s/key-rotated", TopicPrefix, deviceID)
}
