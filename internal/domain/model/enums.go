package model

// MetricType identifies the kind of daily health metric.
type MetricType string

const (
	MetricHeartRate       MetricType = "heart_rate"
	MetricSleep           MetricType = "sleep"
	MetricBodyComposition MetricType = "body_composition"
	MetricStress          MetricType = "stress"
)

// MetricTypes lists every supported metric type in sync order.
var MetricTypes = []MetricType{
	MetricHeartRate,
	MetricSleep,
	MetricBodyComposition,
	MetricStress,
}

// Valid reports whether t is one of the supported metric types.
func (t MetricType) Valid() bool {
	switch t {
	case MetricHeartRate, MetricSleep, MetricBodyComposition, MetricStress:
		return true
	default:
		return false
	}
}

// DataKind identifies a payload that can be fetched from the upstream
// wellness platform for a single calendar day.
type DataKind string

const (
	DataKindUserSummary     DataKind = "user_summary"
	DataKindHeartRate       DataKind = "heart_rate"
	DataKindSleep           DataKind = "sleep"
	DataKindBodyComposition DataKind = "body_composition"
	DataKindStress          DataKind = "stress"
)

// Credential service and kind identifiers.
const (
	ServiceGarmin              = "garmin"
	CredentialUsernamePassword = "username_password"
)
