package ports

import "time"

type Policy struct {
	BusCapacity    int `yaml:"bus_capacity"`
	UplinkQueueLen int `yaml:"uplink_queue_len"`

	SensorInterval    time.Duration `yaml:"sensor_interval"`
	AccelInterval     time.Duration `yaml:"accel_interval"`
	GPSInterval       time.Duration `yaml:"gps_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	GaugeInterval     time.Duration `yaml:"gauge_interval"`
}
