package eventbus

import "strconv"

// Domain topic builders used across the core. Keeping them here means
// every publisher and subscriber constructs the same Topic shape.

// SensorMeasurement is published (non-retained) each time a sensor's
// driver pipeline persists a new measurement.
func SensorMeasurement(sensorID string) Topic { return T("sensor", sensorID, "measurement") }

// SensorStatus names the topic for a sensor driver's health; no component
// in this repository publishes on it.
func SensorStatus(sensorID string) Topic { return T("sensor", sensorID, "status") }

// OutputState is retained: the arbiter's last known level for a pin.
func OutputState(pin int) Topic { return T("output", strconv.Itoa(pin), "state") }

// ControllerAction is published each time a controller's process step
// appends an action log entry.
func ControllerAction(controllerID string) Topic { return T("controller", controllerID, "action") }

// SchedulerTick names the topic for scheduler loop snapshots; no component
// in this repository publishes on it.
func SchedulerTick() Topic { return T("scheduler", "tick") }
