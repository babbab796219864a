package freshdesk

import "time"

// apiTime unmarshals Freshdesk timestamps, tolerating null.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if raw == "null" || raw == `""` {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(`"`+time.RFC3339+`"`, raw)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
