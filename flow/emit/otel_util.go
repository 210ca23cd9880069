package emit

import (
	"encoding/json"
	"fmt"
	"time"
)

func durationFromMS(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func toAttrString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}
