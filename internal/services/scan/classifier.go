// Package scan turns a scanned code and a station snapshot into the action the
// station should take. Nothing in here touches storage or processes.
package scan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zanzhit/station_recorder/internal/domain/models"
)

type Action string

const (
	ActionStart          Action = "start"
	ActionStop           Action = "stop"
	ActionIgnore         Action = "ignore"
	ActionError          Action = "error"
	ActionStationJoin    Action = "station_join"
	ActionStationLeave   Action = "station_leave"
	ActionStationBlocked Action = "station_blocked"
)

// Origin tells a handheld trigger apart from the continuous vision feed.
type Origin int

const (
	OriginManual Origin = iota
	OriginAutomated
)

func (o Origin) String() string {
	if o == OriginAutomated {
		return "automated"
	}

	return "manual"
}

// ParseOrigin accepts "manual"/"automated" and the numeric modes 0/1 sent by
// older scanner clients. Anything else is manual.
func ParseOrigin(s string) Origin {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "automated", "auto", "camera", "1":
		return OriginAutomated
	default:
		return OriginManual
	}
}

// Policy decides what a different code does while a recording is running.
type Policy string

const (
	// PolicySwitch stops the running recording and starts the new code.
	PolicySwitch Policy = "switch"
	// PolicyReject keeps the running recording and ignores the new code.
	PolicyReject Policy = "reject"
)

const DefaultOrderPattern = `^\d{6,}$`

// Snapshot is the station state a decision is based on.
type Snapshot struct {
	Occupant   *models.Operator
	ActiveCode string
}

func (s Snapshot) Recording() bool {
	return s.ActiveCode != ""
}

type Input struct {
	Code    string
	Station Snapshot
	Origin  Origin
	// Operator is the user the code resolved to as a badge, nil otherwise.
	Operator *models.User
}

type Decision struct {
	Action  Action
	Message string
	// Code is the recording code involved: the new code for start, the
	// closed code for stop.
	Code string
	// StopActive asks the executor to close the active recording before
	// applying the action.
	StopActive bool
}

type Classifier struct {
	isOrder func(string) bool
	policy  Policy
}

// New builds a classifier. An empty pattern means DefaultOrderPattern, an
// unknown policy means PolicySwitch.
func New(orderPattern string, policy Policy) (*Classifier, error) {
	if orderPattern == "" {
		orderPattern = DefaultOrderPattern
	}

	re, err := regexp.Compile(orderPattern)
	if err != nil {
		return nil, fmt.Errorf("scan.New: invalid order pattern: %w", err)
	}

	if policy != PolicyReject {
		policy = PolicySwitch
	}

	return &Classifier{
		isOrder: re.MatchString,
		policy:  policy,
	}, nil
}

func (c *Classifier) Policy() Policy {
	return c.policy
}

func (c *Classifier) Classify(in Input) Decision {
	code := strings.TrimSpace(in.Code)
	st := in.Station

	if in.Operator != nil {
		return classifyBadge(*in.Operator, st)
	}

	if IsStopCode(code) {
		if !st.Recording() {
			return Decision{Action: ActionIgnore, Message: "nothing to stop"}
		}

		return Decision{
			Action:     ActionStop,
			Message:    "recording stopped",
			Code:       st.ActiveCode,
			StopActive: true,
		}
	}

	if st.Recording() && strings.EqualFold(st.ActiveCode, code) {
		if in.Origin == OriginManual {
			return Decision{
				Action:     ActionStop,
				Message:    "same code scanned again, recording stopped",
				Code:       st.ActiveCode,
				StopActive: true,
			}
		}

		return Decision{
			Action:  ActionIgnore,
			Message: "code is already being recorded",
			Code:    st.ActiveCode,
		}
	}

	if !c.isOrder(code) {
		return Decision{Action: ActionIgnore, Message: "not a valid trigger"}
	}

	if st.Recording() {
		if c.policy == PolicyReject {
			return Decision{
				Action:  ActionIgnore,
				Message: fmt.Sprintf("station is recording another code: %s", st.ActiveCode),
				Code:    st.ActiveCode,
			}
		}

		return Decision{
			Action:     ActionStart,
			Message:    fmt.Sprintf("closed %s, recording started", st.ActiveCode),
			Code:       code,
			StopActive: true,
		}
	}

	return Decision{Action: ActionStart, Message: "recording started", Code: code}
}

func classifyBadge(op models.User, st Snapshot) Decision {
	switch {
	case st.Occupant == nil:
		return Decision{
			Action:  ActionStationJoin,
			Message: fmt.Sprintf("%s joined the station", op.DisplayName()),
		}
	case st.Occupant.ID == op.Id:
		return Decision{
			Action:     ActionStationLeave,
			Message:    fmt.Sprintf("%s left the station", op.DisplayName()),
			Code:       st.ActiveCode,
			StopActive: st.Recording(),
		}
	default:
		return Decision{
			Action:  ActionStationBlocked,
			Message: fmt.Sprintf("station is in use by %s", st.Occupant.DisplayName()),
		}
	}
}

// IsStopCode matches the fixed stop vocabulary, case-insensitively.
func IsStopCode(code string) bool {
	c := strings.ToUpper(strings.TrimSpace(code))
	if c == "" {
		return false
	}

	return c == "STOP" ||
		strings.Contains(c, "STOP RECORDING") ||
		strings.Contains(c, "@@STOP_RECORD@@")
}

// BadgeKey normalizes a scanned code for operator lookup: trims it, drops an
// "EMP:" prefix, removes spaces and upper-cases the rest.
func BadgeKey(code string) string {
	key := strings.TrimSpace(code)
	if len(key) >= 4 && strings.EqualFold(key[:4], "EMP:") {
		key = key[4:]
	}

	return strings.ToUpper(strings.ReplaceAll(key, " ", ""))
}
