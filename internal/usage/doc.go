// Package usage stores the water-usage sessions device hubs report and
// serves them back to the mobile app.
//
// A hub posts a Report with its device key. Once the key is authorised the
// report becomes a Session, is stored in SQLite and is then passed to the
// configured sinks (MQTT, InfluxDB). The app reads sessions for one day as
// Records, whose keys and string values match what it has always parsed:
//
//	{"session ID": "12", "sink ID": "3", "start time": "07:30:00", "date": "03/09/2024", ...}
package usage
