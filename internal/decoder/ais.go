package decoder

import (
	"bytes"
	"fmt"

	ais "github.com/BertoldVdb/go-ais"
	"github.com/BertoldVdb/go-ais/aisnmea"
	"github.com/goccy/go-json"
	"github.com/iancoleman/strcase"
	"github.com/saviobatista/ais-receiver/internal/parser"
	"github.com/saviobatista/ais-receiver/internal/types"
)

// Protocol field names renamed on the way out of the codec
var renames = map[string]string{
	"user_id":    types.FieldMMSI,
	"longitude":  types.FieldLongitude,
	"latitude":   types.FieldLatitude,
	"message_id": types.FieldType,
	"call_sign":  "callsign",
}

// AIS decodes armored payloads with the go-ais codec. Payloads arrive
// already reassembled, so each one is framed as a single fragment sentence
// and left to aisnmea for de-armoring.
type AIS struct {
	nmea *aisnmea.NMEACodec
}

// NewAIS creates a new AIS payload decoder
func NewAIS() *AIS {
	codec := ais.CodecNew(false, false)
	codec.DropSpace = true
	return &AIS{nmea: aisnmea.NMEACodecNew(codec)}
}

// Decode converts an armored payload into protocol fields
func (a *AIS) Decode(payload string, fillBits int) (types.Message, error) {
	vdm, err := a.nmea.ParseSentence(frame(payload, fillBits))
	if err != nil {
		return nil, fmt.Errorf("failed to de-armor payload: %w", err)
	}
	if vdm == nil || vdm.Packet == nil {
		bits := 0
		if vdm != nil {
			bits = len(vdm.Payload)
		}
		return nil, fmt.Errorf("codec rejected %d bit payload", bits)
	}
	hdr := vdm.Packet.GetHeader()

	raw, err := json.Marshal(vdm.Packet)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal packet: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal packet: %w", err)
	}

	msg := make(types.Message, len(tree)+2)
	flatten(msg, "", tree)
	msg[types.FieldMMSI] = int64(hdr.UserID)
	msg[types.FieldType] = int64(hdr.MessageID)
	return msg, nil
}

// frame wraps a complete payload in a checksummed one fragment sentence
func frame(payload string, fillBits int) string {
	body := fmt.Sprintf("AIVDM,1,1,,A,%s,%d", payload, fillBits)
	return fmt.Sprintf("!%s*%02X", body, parser.Checksum([]byte(body)))
}

func flatten(out types.Message, prefix string, tree map[string]any) {
	for k, v := range tree {
		key := strcase.ToSnake(k)
		// the header is promoted so its fields keep their bare names
		if prefix == "" && key == "header" {
			key = ""
		} else if prefix != "" {
			key = prefix + "_" + key
		}

		if nested, ok := v.(map[string]any); ok {
			flatten(out, key, nested)
			continue
		}
		if key == "" {
			continue
		}
		if renamed, ok := renames[key]; ok {
			key = renamed
		}
		out[key] = scalar(v)
	}
}

func scalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
