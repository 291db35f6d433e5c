package storage

import "fmt"

// Drivers accepted by Open
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverMemory = "memory"
)

// Open returns the store for a configured driver
func Open(driver, path string) (Local, error) {
	switch driver {
	case DriverSQLite, "":
		return NewDatabase(path)
	case DriverBolt:
		return NewBoltStore(path)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
