// Package command builds the exact byte sequences for the known Tydom
// gateway operations. Transaction IDs are opaque strings
// chosen by the caller; the builder never allocates them.
package command

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sideeffect-io/tydom-go/internal/httpframe"
)

// Frame is a single outgoing command frame: the serialized bytes plus the
// metadata needed by callers that want to correlate it (e.g. the poll
// scheduler re-sending the same URL on an interval).
type Frame struct {
	Method string
	Path   string
	TxID   string
	Bytes  []byte
}

func get(path, tx string) Frame {
	return Frame{Method: "GET", Path: path, TxID: tx, Bytes: httpframe.SerializeRequest("GET", path, tx, nil)}
}

func put(path, tx string, body []byte) Frame {
	return Frame{Method: "PUT", Path: path, TxID: tx, Bytes: httpframe.SerializeRequest("PUT", path, tx, body)}
}

func post(path, tx string, body []byte) Frame {
	return Frame{Method: "POST", Path: path, TxID: tx, Bytes: httpframe.SerializeRequest("POST", path, tx, body)}
}

// Ping builds "GET /ping".
func Ping(tx string) Frame { return get("/ping", tx) }

// RefreshAll builds "POST /refresh/all".
func RefreshAll(tx string) Frame { return post("/refresh/all", tx, nil) }

// Info builds "GET /info".
func Info(tx string) Frame { return get("/info", tx) }

// DevicesMeta builds "GET /devices/meta".
func DevicesMeta(tx string) Frame { return get("/devices/meta", tx) }

// DevicesData builds "GET /devices/data".
func DevicesData(tx string) Frame { return get("/devices/data", tx) }

// ConfigsFile builds "GET /configs/file".
func ConfigsFile(tx string) Frame { return get("/configs/file", tx) }

// DevicesCMeta builds "GET /devices/cmeta".
func DevicesCMeta(tx string) Frame { return get("/devices/cmeta", tx) }

// AreasMeta builds "GET /areas/meta".
func AreasMeta(tx string) Frame { return get("/areas/meta", tx) }

// AreasCMeta builds "GET /areas/cmeta".
func AreasCMeta(tx string) Frame { return get("/areas/cmeta", tx) }

// AreasData builds "GET /areas/data".
func AreasData(tx string) Frame { return get("/areas/data", tx) }

// MomentsFile builds "GET /moments/file".
func MomentsFile(tx string) Frame { return get("/moments/file", tx) }

// ScenariosFile builds "GET /scenarios/file".
func ScenariosFile(tx string) Frame { return get("/scenarios/file", tx) }

// GroupsFile builds "GET /groups/file".
func GroupsFile(tx string) Frame { return get("/groups/file", tx) }

// Geoloc builds "GET /geoloc".
func Geoloc(tx string) Frame { return get("/geoloc", tx) }

// LocalClaim builds "GET /configs/gateway/local_claim".
func LocalClaim(tx string) Frame { return get("/configs/gateway/local_claim", tx) }

// APIMode builds "PUT /configs/gateway/api_mode" with no body.
func APIMode(tx string) Frame { return put("/configs/gateway/api_mode", tx, nil) }

// UpdateFirmware builds "PUT /configs/gateway/update_firmware" with no body.
func UpdateFirmware(tx string) Frame { return put("/configs/gateway/update_firmware", tx, nil) }

// DeviceData builds "GET /devices/{deviceID}/endpoints/{deviceID}/data".
// Both path segments intentionally reuse the same id: this mirrors legacy
// gateway behavior and must not be
// "fixed" without vendor confirmation.
func DeviceData(tx string, deviceID int) Frame {
	path := fmt.Sprintf("/devices/%d/endpoints/%d/data", deviceID, deviceID)
	return get(path, tx)
}

// PollDeviceData builds "GET <url>" for a poll-scheduler re-send.
func PollDeviceData(tx, url string) Frame { return get(url, tx) }

// ActivateScenario builds "PUT /scenarios/{id}" with no body.
func ActivateScenario(tx string, id int) Frame {
	return put(fmt.Sprintf("/scenarios/%d", id), tx, nil)
}

// PutDataValue is the legacy scalar accepted by PutData: bool and int are
// stringified ("true", "42"); nil becomes the literal string "null". This
// asymmetry with PutDevicesData mirrors the vendor protocol (see
// Questions) and must not be unified without vendor confirmation.
type PutDataValue struct {
	Bool    *bool
	Int     *int
	IsNull  bool
	RawText string // used when none of the above are set
}

func (v PutDataValue) stringify() string {
	switch {
	case v.Bool != nil:
		return strconv.FormatBool(*v.Bool)
	case v.Int != nil:
		return strconv.Itoa(*v.Int)
	case v.IsNull:
		return "null"
	default:
		return v.RawText
	}
}

// PutData builds "PUT <path>" with body {"<name>":"<stringified value>"}.
func PutData(tx, path, name string, value PutDataValue) (Frame, error) {
	body, err := json.Marshal(map[string]string{name: value.stringify()})
	if err != nil {
		return Frame{}, fmt.Errorf("command: marshal put_data body: %w", err)
	}
	return put(path, tx, body), nil
}

// PutDevicesData builds
// "PUT /devices/{device}/endpoints/{endpoint}/data" with body
// [{"name":"<name>","value":<value>}], preserving value's raw JSON type
// (unlike PutData, which stringifies scalars).
func PutDevicesData(tx string, device, endpoint int, name string, value any) (Frame, error) {
	body, err := json.Marshal([]map[string]any{{"name": name, "value": value}})
	if err != nil {
		return Frame{}, fmt.Errorf("command: marshal put_devices_data body: %w", err)
	}
	path := fmt.Sprintf("/devices/%d/endpoints/%d/data", device, endpoint)
	return put(path, tx, body), nil
}

// AlarmCData builds the alarm cdata command(s). When legacyZones is true
// and zoneID is a comma-separated list, one frame per zone is produced
// (path ".../cdata?name=partCmd", body {"part":"<zone>", "value":"<v>",
// "pwd":"<pin>"}); otherwise a single frame is produced
// (path ".../cdata?name=alarmCmd", body {"value":"<v>","pwd":"<pin>"}).
func AlarmCData(tx string, device, endpoint int, pin, value, zoneID string, legacyZones bool) ([]Frame, error) {
	base := fmt.Sprintf("/devices/%d/endpoints/%d/cdata", device, endpoint)

	if legacyZones && strings.Contains(zoneID, ",") {
		zones := strings.Split(zoneID, ",")
		frames := make([]Frame, 0, len(zones))
		for _, z := range zones {
			z = strings.TrimSpace(z)
			body, err := json.Marshal(partCmdBody{Part: z, Value: value, Pwd: pin})
			if err != nil {
				return nil, fmt.Errorf("command: marshal partCmd body: %w", err)
			}
			frames = append(frames, put(base+"?name=partCmd", tx, body))
		}
		return frames, nil
	}

	body, err := json.Marshal(alarmCmdBody{Value: value, Pwd: pin})
	if err != nil {
		return nil, fmt.Errorf("command: marshal alarmCmd body: %w", err)
	}
	return []Frame{put(base+"?name=alarmCmd", tx, body)}, nil
}

// alarmCmdBody and partCmdBody fix field order to match the gateway's
// literal wire format: "value" before "pwd",
// and "part" first. A plain map would marshal keys alphabetically instead.
type alarmCmdBody struct {
	Value string `json:"value"`
	Pwd   string `json:"pwd"`
}

type partCmdBody struct {
	Part  string `json:"part"`
	Value string `json:"value"`
	Pwd   string `json:"pwd"`
}

// AckEventsCData builds
// "PUT /devices/{device}/endpoints/{endpoint}/cdata?name=ackEventCmd"
// with body {"pwd":"<pin>"}.
func AckEventsCData(tx string, device, endpoint int, pin string) (Frame, error) {
	body, err := json.Marshal(map[string]string{"pwd": pin})
	if err != nil {
		return Frame{}, fmt.Errorf("command: marshal ackEventCmd body: %w", err)
	}
	path := fmt.Sprintf("/devices/%d/endpoints/%d/cdata?name=ackEventCmd", device, endpoint)
	return put(path, tx, body), nil
}
