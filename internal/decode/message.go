// Package decode parses an httpframe.Frame into a typed TydomMessage by
// routing on its Uri-Origin header.
package decode

import (
	"github.com/sideeffect-io/tydom-go/internal/httpframe"
	"github.com/sideeffect-io/tydom-go/internal/jsonvalue"
)

// Kind is the device-kind enum derived from a device's usage string
// (the fixed usage-to-kind table).
type Kind int

const (
	KindOther Kind = iota
	KindShutter
	KindWindow
	KindDoor
	KindGarage
	KindGate
	KindLight
	KindEnergy
	KindSmoke
	KindBoiler
	KindAlarm
	KindWeather
	KindWater
	KindThermo
)

func (k Kind) String() string {
	switch k {
	case KindShutter:
		return "Shutter"
	case KindWindow:
		return "Window"
	case KindDoor:
		return "Door"
	case KindGarage:
		return "Garage"
	case KindGate:
		return "Gate"
	case KindLight:
		return "Light"
	case KindEnergy:
		return "Energy"
	case KindSmoke:
		return "Smoke"
	case KindBoiler:
		return "Boiler"
	case KindAlarm:
		return "Alarm"
	case KindWeather:
		return "Weather"
	case KindWater:
		return "Water"
	case KindThermo:
		return "Thermo"
	default:
		return "Other"
	}
}

// KindForUsage maps a usage string to its Kind, per the fixed usage table.
// Unknown usages return KindOther; the caller keeps the original usage
// string on the device record to recover "Other(usage)".
func KindForUsage(usage string) Kind {
	switch usage {
	case "shutter", "klineShutter", "awning", "swingShutter":
		return KindShutter
	case "window", "windowFrench", "windowSliding", "klineWindowFrench", "klineWindowSliding":
		return KindWindow
	case "belmDoor", "klineDoor":
		return KindDoor
	case "garage_door":
		return KindGarage
	case "gate":
		return KindGate
	case "light":
		return KindLight
	case "conso":
		return KindEnergy
	case "sensorDFR":
		return KindSmoke
	case "boiler", "sh_hvac", "electric", "aeraulic":
		return KindBoiler
	case "alarm":
		return KindAlarm
	case "weather":
		return KindWeather
	case "sensorDF":
		return KindWater
	case "sensorThermo":
		return KindThermo
	default:
		return KindOther
	}
}

// Device is a hydrated device data record, produced from a /devices/data
// (or /devices/cdata) frame and enriched from the catalog.
type Device struct {
	ID         int
	EndpointID int
	UniqueID   string
	Name       string
	Usage      string
	Kind       Kind
	Data       map[string]jsonvalue.Value
	Metadata   map[string]jsonvalue.Value
}

// Message is the sealed TydomMessage union. Implementations:
// GatewayInfo, Devices, List (scenarios/groups/moments/areas), Raw.
type Message interface {
	isMessage()
}

// GatewayInfo carries the decoded /info payload.
type GatewayInfo struct {
	Payload jsonvalue.Value
	TxID    string
}

func (GatewayInfo) isMessage() {}

// Devices carries a list of hydrated device records from /devices/data or
// /devices/cdata.
type Devices struct {
	List []Device
	TxID string
}

func (Devices) isMessage() {}

// ListFamily discriminates the four "list of opaque objects" message
// families that share a shape (scenarios/groups/moments/areas) but come
// from distinct endpoints.
type ListFamily int

const (
	ListScenarios ListFamily = iota
	ListGroups
	ListMoments
	ListAreas
)

// List carries Scenarios/Groups/Moments/Areas bodies, which the gateway
// defines identically ("list of opaque objects") without further structure.
type List struct {
	Family ListFamily
	Items  []jsonvalue.Value
	TxID   string
}

func (List) isMessage() {}

// Raw is the fallback message: absorbed catalog updates, unroutable URIs,
// bodies that parsed as a frame but failed semantic decoding, and frames
// that failed to parse at all (ParseError set).
type Raw struct {
	Payload    []byte
	Frame      *httpframe.Frame
	URIOrigin  string
	TxID       string
	ParseError string
}

func (Raw) isMessage() {}
