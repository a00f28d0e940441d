// Package mqtt publishes Hydroconnect events to an MQTT broker.
//
// The API server stores every usage session first and then fans it out on
// hydroconnect/usage/{sink_id} so dashboards can follow usage live. Key
// rotations are announced on hydroconnect/device/{device_id}/key-rotated;
// the payload names the device and the rotation date, never the key.
//
// The client is publish-only. A retained status message on
// hydroconnect/system/status, backed by a Last Will, tells subscribers
// whether the server is up.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishJSON(mqtt.Topics{}.Usage(3), session)
package mqtt
