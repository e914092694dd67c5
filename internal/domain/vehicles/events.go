package vehicles

import "time"

type VehicleListed struct {
	VehicleID VehicleID
	HostID    HostID
	At        time.Time
}

func (e VehicleListed) EventName() string     { return "vehicle.listed" }
func (e VehicleListed) AggregateID() string   { return string(e.VehicleID) }
func (e VehicleListed) OccurredAt() time.Time { return e.At }

type VehicleUpdated struct {
	VehicleID VehicleID
	At        time.Time
}

func (e VehicleUpdated) EventName() string     { return "vehicle.updated" }
func (e VehicleUpdated) AggregateID() string   { return string(e.VehicleID) }
func (e VehicleUpdated) OccurredAt() time.Time { return e.At }
