package web

import (
	"encoding/json"

	"github.com/sweeney/irigb-decoder/internal/irigb"
	"github.com/sweeney/irigb-decoder/internal/status"
)

// FrameMessage is the JSON message sent to live feed clients for each frame.
type FrameMessage struct {
	Frame   int              `json:"frame"`
	Valid   bool             `json:"valid"`
	Start   int64            `json:"start_sample"`
	End     int64            `json:"end_sample"`
	Time    *status.TimeJSON `json:"time,omitempty"`
	Error   string           `json:"error,omitempty"`
	Classes string           `json:"classes"`
}

func formatFrame(f irigb.Frame, out irigb.Outcome) []byte {
	msg := FrameMessage{
		Frame:   f.Seq,
		Valid:   out.Valid,
		Start:   f.Start(),
		End:     f.End(),
		Classes: f.Classes(),
	}
	if out.Valid {
		r := out.Record
		msg.Time = &status.TimeJSON{
			DayOfYear:        r.DayOfYear,
			Hours:            r.Hours,
			Minutes:          r.Minutes,
			Seconds:          r.Seconds,
			Year:             r.Year,
			TimeOfDaySeconds: r.TimeOfDaySeconds,
			Text:             r.String(),
		}
	} else if out.Err != nil {
		msg.Error = out.Err.Error()
	}
	data, _ := json.Marshal(msg)
	return data
}
