package intercom

import (
	"strconv"
	"time"
)

// epochTime unmarshals Intercom's Unix-seconds timestamps.
type epochTime struct {
	time.Time
}

func (t *epochTime) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" || raw == "0" {
		t.Time = time.Time{}
		return nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return err
	}
	t.Time = time.Unix(seconds, 0).UTC()
	return nil
}
