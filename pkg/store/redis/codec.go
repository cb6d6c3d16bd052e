package redis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/conveyorq/conveyor/pkg/job"
)

// Hash fields on ae:job:<id>. Field names and numeric statuses are the wire
// protocol shared by every worker process on the store; renaming one is a
// breaking change.
const (
	fieldID              = "Id"
	fieldName            = "Name"
	fieldStatus          = "Status"
	fieldHeaders         = "Headers"
	fieldRouteParams     = "RouteParams"
	fieldQueryParams     = "QueryParams"
	fieldPayload         = "Payload"
	fieldResult          = "Result"
	fieldError           = "Error"
	fieldRetryCount      = "RetryCount"
	fieldMaxRetries      = "MaxRetries"
	fieldRetryDelayUntil = "RetryDelayUntil"
	fieldWorkerID        = "WorkerId"
	fieldCreatedAt       = "CreatedAt"
	fieldStartedAt       = "StartedAt"
	fieldStartedAtUnix   = "StartedAtUnix"
	fieldCompletedAt     = "CompletedAt"
	fieldLastUpdatedAt   = "LastUpdatedAt"
)

// timeFormat is the ISO 8601 layout used for every timestamp field except
// StartedAtUnix, which the recovery script needs as an integer.
const timeFormat = time.RFC3339Nano

// encodeJob converts a job into the hash-field map written to ae:job:<id>.
// Absent values are encoded as empty strings so a partial HSET can clear
// them.
func encodeJob(j *job.Job) (map[string]any, error) {
	headers, err := json.Marshal(j.HTTPContext.Headers)
	if err != nil {
		return nil, fmt.Errorf("encoding headers: %w", err)
	}
	routeParams, err := json.Marshal(j.HTTPContext.RouteParams)
	if err != nil {
		return nil, fmt.Errorf("encoding route params: %w", err)
	}
	queryParams, err := json.Marshal(j.HTTPContext.QueryParams)
	if err != nil {
		return nil, fmt.Errorf("encoding query params: %w", err)
	}

	fields := map[string]any{
		fieldID:              j.ID.String(),
		fieldName:            j.Name,
		fieldStatus:          strconv.Itoa(int(j.Status)),
		fieldHeaders:         string(headers),
		fieldRouteParams:     string(routeParams),
		fieldQueryParams:     string(queryParams),
		fieldPayload:         string(j.Payload),
		fieldResult:          string(j.Result),
		fieldError:           "",
		fieldRetryCount:      strconv.Itoa(j.RetryCount),
		fieldMaxRetries:      strconv.Itoa(j.MaxRetries),
		fieldRetryDelayUntil: encodeTimePtr(j.RetryDelayUntil),
		fieldWorkerID:        "",
		fieldCreatedAt:       j.CreatedAt.UTC().Format(timeFormat),
		fieldStartedAt:       encodeTimePtr(j.StartedAt),
		fieldStartedAtUnix:   "",
		fieldCompletedAt:     encodeTimePtr(j.CompletedAt),
		fieldLastUpdatedAt:   j.LastUpdatedAt.UTC().Format(timeFormat),
	}
	if j.Error != nil {
		e, err := json.Marshal(j.Error)
		if err != nil {
			return nil, fmt.Errorf("encoding error field: %w", err)
		}
		fields[fieldError] = string(e)
	}
	if j.WorkerID != nil {
		fields[fieldWorkerID] = j.WorkerID.String()
	}
	if j.StartedAt != nil {
		fields[fieldStartedAtUnix] = strconv.FormatInt(j.StartedAt.Unix(), 10)
	}
	return fields, nil
}

// decodeJob reconstructs a job from hash fields.
func decodeJob(fields map[string]string) (*job.Job, error) {
	id, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return nil, fmt.Errorf("decoding job id %q: %w", fields[fieldID], err)
	}
	statusNum, err := strconv.Atoi(fields[fieldStatus])
	if err != nil {
		return nil, fmt.Errorf("decoding status %q: %w", fields[fieldStatus], err)
	}
	status := job.Status(statusNum)
	if !status.Valid() {
		return nil, fmt.Errorf("unknown job status %d", statusNum)
	}

	j := &job.Job{
		ID:     id,
		Name:   fields[fieldName],
		Status: status,
	}

	if v := fields[fieldPayload]; v != "" {
		j.Payload = []byte(v)
	}
	if v := fields[fieldResult]; v != "" {
		j.Result = []byte(v)
	}
	if v := fields[fieldError]; v != "" {
		var e job.Error
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decoding error field: %w", err)
		}
		j.Error = &e
	}

	if j.RetryCount, err = decodeInt(fields[fieldRetryCount]); err != nil {
		return nil, fmt.Errorf("decoding retry count: %w", err)
	}
	if j.MaxRetries, err = decodeInt(fields[fieldMaxRetries]); err != nil {
		return nil, fmt.Errorf("decoding max retries: %w", err)
	}

	if v := fields[fieldWorkerID]; v != "" {
		w, err := uuid.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("decoding worker id %q: %w", v, err)
		}
		j.WorkerID = &w
	}

	if j.CreatedAt, err = decodeTime(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("decoding created at: %w", err)
	}
	if j.LastUpdatedAt, err = decodeTime(fields[fieldLastUpdatedAt]); err != nil {
		return nil, fmt.Errorf("decoding last updated at: %w", err)
	}
	if j.RetryDelayUntil, err = decodeTimePtr(fields[fieldRetryDelayUntil]); err != nil {
		return nil, fmt.Errorf("decoding retry delay until: %w", err)
	}
	if j.StartedAt, err = decodeTimePtr(fields[fieldStartedAt]); err != nil {
		return nil, fmt.Errorf("decoding started at: %w", err)
	}
	if j.CompletedAt, err = decodeTimePtr(fields[fieldCompletedAt]); err != nil {
		return nil, fmt.Errorf("decoding completed at: %w", err)
	}

	if v := fields[fieldHeaders]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.HTTPContext.Headers); err != nil {
			return nil, fmt.Errorf("decoding headers: %w", err)
		}
	}
	if v := fields[fieldRouteParams]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.HTTPContext.RouteParams); err != nil {
			return nil, fmt.Errorf("decoding route params: %w", err)
		}
	}
	if v := fields[fieldQueryParams]; v != "" {
		if err := json.Unmarshal([]byte(v), &j.HTTPContext.QueryParams); err != nil {
			return nil, fmt.Errorf("decoding query params: %w", err)
		}
	}

	return j, nil
}

// decodeScriptReply converts the flat [field, value, field, value, ...] reply
// of the claim script's HGETALL into a field map.
func decodeScriptReply(reply []any) (map[string]string, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("malformed script reply: %d elements", len(reply))
	}
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, ok := reply[i].(string)
		if !ok {
			return nil, fmt.Errorf("malformed script reply: field %d is %T", i, reply[i])
		}
		v, ok := reply[i+1].(string)
		if !ok {
			return nil, fmt.Errorf("malformed script reply: value for %q is %T", k, reply[i+1])
		}
		fields[k] = v
	}
	return fields, nil
}

func encodeTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func decodeTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := decodeTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
