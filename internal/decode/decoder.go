package decode

import (
	"encoding/json"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/sideeffect-io/tydom-go/internal/catalog"
	"github.com/sideeffect-io/tydom-go/internal/httpframe"
	"github.com/sideeffect-io/tydom-go/internal/jsonvalue"
)

// Decode routes a parsed frame by its Uri-Origin header to a typed
// Message, applying catalog upserts along the way for message families
// that exist purely to populate the catalog. cat may be nil,
// in which case catalog-dependent routing (devices/data, devices/cdata)
// always drops/falls back as if nothing were known yet.
func Decode(frame httpframe.Frame, cat *catalog.Catalog) Message {
	txID, _ := frame.Headers.Get("Transac-Id")

	origin, hasOrigin := frame.Headers.Get("Uri-Origin")
	if !hasOrigin {
		return Raw{Payload: frame.Body, Frame: &frame, TxID: txID}
	}

	switch {
	case origin == "/info":
		return decodeInfo(frame.Body, origin, txID)
	case origin == "/configs/file":
		return decodeConfigsFile(frame.Body, origin, txID, cat)
	case origin == "/devices/meta":
		return decodeDevicesMeta(frame.Body, origin, txID, cat)
	case origin == "/devices/data" || strings.Contains(origin, "/devices/") && strings.HasSuffix(origin, "/data"):
		return decodeDevicesData(frame.Body, origin, txID, cat)
	case origin == "/devices/cdata" || strings.Contains(origin, "/cdata"):
		return decodeDevicesCData(frame.Body, origin, txID, cat)
	case origin == "/scenarios/file":
		return decodeList(frame.Body, origin, txID, ListScenarios)
	case origin == "/groups/file":
		return decodeList(frame.Body, origin, txID, ListGroups)
	case origin == "/moments/file":
		return decodeList(frame.Body, origin, txID, ListMoments)
	case origin == "/areas/data" || origin == "/areas/meta" || origin == "/areas/cmeta":
		return decodeList(frame.Body, origin, txID, ListAreas)
	default:
		return Raw{Payload: frame.Body, Frame: &frame, URIOrigin: origin, TxID: txID}
	}
}

func decodeInfo(body []byte, origin, txID string) Message {
	v, err := jsonvalue.Parse(body)
	if err != nil {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}
	return GatewayInfo{Payload: v, TxID: txID}
}

type configsFileBody struct {
	Endpoints []struct {
		IDEndpoint int    `json:"id_endpoint"`
		IDDevice   int    `json:"id_device"`
		Name       string `json:"name"`
		LastUsage  string `json:"last_usage,omitempty"`
	} `json:"endpoints"`
}

func decodeConfigsFile(body []byte, origin, txID string, cat *catalog.Catalog) Message {
	var parsed configsFileBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}

	if cat != nil {
		for _, ep := range parsed.Endpoints {
			uid := catalog.UniqueID(ep.IDEndpoint, ep.IDDevice)
			name := ep.Name
			if ep.LastUsage == "alarm" {
				name = "Tyxal Alarm"
			}
			usage := ep.LastUsage
			cat.Upsert(catalog.Entry{UniqueID: uid, Name: &name, Usage: &usage})
		}
	}

	return Raw{Payload: body, URIOrigin: origin, TxID: txID}
}

type devicesMetaBody []struct {
	ID        int `json:"id"`
	Endpoints []struct {
		ID       int              `json:"id"`
		Metadata []map[string]any `json:"metadata"`
	} `json:"endpoints"`
}

func decodeDevicesMeta(body []byte, origin, txID string, cat *catalog.Catalog) Message {
	var parsed devicesMetaBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}

	if cat != nil {
		for _, dev := range parsed {
			for _, ep := range dev.Endpoints {
				metadata := make(map[string]jsonvalue.Value, len(ep.Metadata))
				for _, attrs := range ep.Metadata {
					var attr struct {
						Name string `mapstructure:"name"`
					}
					if err := mapstructure.Decode(attrs, &attr); err != nil || attr.Name == "" {
						continue
					}
					metadata[attr.Name] = jsonvalue.Object(objectFromAttrs(attrs))
				}
				uid := catalog.UniqueID(ep.ID, dev.ID)
				cat.Upsert(catalog.Entry{UniqueID: uid, Metadata: metadata})
			}
		}
	}

	return Raw{Payload: body, URIOrigin: origin, TxID: txID}
}

func objectFromAttrs(attrs map[string]any) map[string]jsonvalue.Value {
	out := make(map[string]jsonvalue.Value, len(attrs))
	for k, v := range attrs {
		out[k] = jsonvalue.FromAny(v)
	}
	return out
}

type devicesDataBody []struct {
	ID        int `json:"id"`
	Endpoints []struct {
		ID    int  `json:"id"`
		Error *int `json:"error"`
		Data  []struct {
			Name     string `json:"name"`
			Value    any    `json:"value"`
			Validity string `json:"validity"`
		} `json:"data"`
	} `json:"endpoints"`
}

func decodeDevicesData(body []byte, origin, txID string, cat *catalog.Catalog) Message {
	var parsed devicesDataBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}

	var devices []Device
	for _, dev := range parsed {
		for _, ep := range dev.Endpoints {
			if ep.Error != nil && *ep.Error != 0 {
				continue
			}
			uid := catalog.UniqueID(ep.ID, dev.ID)
			if cat == nil {
				continue
			}
			rec, ok := cat.DeviceInfo(uid)
			if !ok {
				continue // drop silently when endpoint unknown to the catalog
			}

			data := map[string]jsonvalue.Value{}
			for _, entry := range ep.Data {
				if entry.Validity != "upToDate" {
					continue
				}
				data[entry.Name] = jsonvalue.FromAny(entry.Value)
			}
			if len(data) == 0 {
				continue
			}

			devices = append(devices, Device{
				ID:         dev.ID,
				EndpointID: ep.ID,
				UniqueID:   uid,
				Name:       rec.Name,
				Usage:      rec.Usage,
				Kind:       KindForUsage(rec.Usage),
				Data:       data,
				Metadata:   rec.Metadata,
			})
		}
	}

	if len(devices) == 0 {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}
	return Devices{List: devices, TxID: txID}
}

type devicesCDataBody []struct {
	ID        int `json:"id"`
	Endpoints []struct {
		ID    int `json:"id"`
		CData []struct {
			Name       string         `json:"name"`
			Parameters map[string]any `json:"parameters,omitempty"`
			Values     map[string]any `json:"values,omitempty"`
		} `json:"cdata"`
	} `json:"endpoints"`
}

func decodeDevicesCData(body []byte, origin, txID string, cat *catalog.Catalog) Message {
	var parsed devicesCDataBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}

	var devices []Device
	for _, dev := range parsed {
		for _, ep := range dev.Endpoints {
			uid := catalog.UniqueID(ep.ID, dev.ID)
			if cat == nil {
				continue
			}
			usage, ok := cat.Usage(uid)
			if !ok || usage != "conso" {
				continue
			}

			data := map[string]jsonvalue.Value{}
			for _, entry := range ep.CData {
				extractCDataEntry(entry.Name, entry.Parameters, entry.Values, data)
			}
			if len(data) == 0 {
				continue
			}

			rec, _ := cat.DeviceInfo(uid)
			devices = append(devices, Device{
				ID:         dev.ID,
				EndpointID: ep.ID,
				UniqueID:   uid,
				Name:       rec.Name,
				Usage:      rec.Usage,
				Kind:       KindForUsage(rec.Usage),
				Data:       data,
				Metadata:   rec.Metadata,
			})
		}
	}

	if len(devices) == 0 {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}
	return Devices{List: devices, TxID: txID}
}

// extractCDataEntry implements the two cdata extraction rules:
// a dest-keyed counter reading, or a period-keyed spread of uppercase
// value keys.
func extractCDataEntry(name string, parameters, values map[string]any, out map[string]jsonvalue.Value) {
	if dest, ok := parameters["dest"]; ok {
		if counter, ok := values["counter"]; ok {
			key := name + "_" + toStringKey(dest)
			out[key] = jsonvalue.FromAny(counter)
		}
		return
	}
	if _, ok := parameters["period"]; ok {
		for k, v := range values {
			if k == strings.ToUpper(k) {
				out[name+"_"+k] = jsonvalue.FromAny(v)
			}
		}
	}
}

func toStringKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(body []byte, origin, txID string, family ListFamily) Message {
	var items []jsonvalue.Value
	v, err := jsonvalue.Parse(body)
	if err != nil {
		return Raw{Payload: body, URIOrigin: origin, TxID: txID}
	}
	if arr, ok := v.Array(); ok {
		items = arr
	} else {
		items = []jsonvalue.Value{v}
	}
	return List{Family: family, Items: items, TxID: txID}
}
