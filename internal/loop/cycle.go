package loop

import (
	"time"

	"github.com/haptable/haptable/internal/scene"
	"github.com/haptable/haptable/internal/stereo"
)

// State labels where a cycle ended. Every cycle passes WAITING_FOR_FRAME
// and settles on NO_HAND, NO_CONTACT, or ACTUATING; the intermediate
// states appear in records only when a later stage was reached.
type State string

const (
	StateWaitingForFrame State = "WAITING_FOR_FRAME"
	StateHandDetected    State = "HAND_DETECTED"
	StateNoHand          State = "NO_HAND"
	StateTableContact    State = "TABLE_CONTACT"
	StateNoContact       State = "NO_CONTACT"
	StateActuating       State = "ACTUATING"
)

// Contact is one curve collision in a cycle record.
type Contact struct {
	CurveID   int     `json:"curve_id"`
	CurveName string  `json:"curve_name"`
	Distance  float64 `json:"distance_mm"`
}

// Cycle is one finished pass of the control loop, published to the monitor
// and the session recorder.
type Cycle struct {
	Seq        uint64         `json:"seq"`
	Start      time.Time      `json:"start"`
	State      State          `json:"state"`
	FrameSeq   uint64         `json:"frame_seq,omitempty"`
	Fingertip  *stereo.Point3 `json:"fingertip,omitempty"`
	Collisions []Contact      `json:"collisions,omitempty"`
	Levels     []int          `json:"levels"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
}

// Snapshot is the externally readable loop state served by the status API.
type Snapshot struct {
	Running     bool         `json:"running"`
	Cycles      uint64       `json:"cycles"`
	MotorCount  int          `json:"motor_count"`
	TableHeight float64      `json:"table_height_mm"`
	XMin        float64      `json:"x_min_mm"`
	XMax        float64      `json:"x_max_mm"`
	ZMin        float64      `json:"z_min_mm"`
	ZMax        float64      `json:"z_max_mm"`
	Curves      []scene.Info `json:"curves"`
	Last        Cycle        `json:"last_cycle"`
}

func contactRecords(collisions []scene.Collision) []Contact {
	if len(collisions) == 0 {
		return nil
	}
	out := make([]Contact, len(collisions))
	for i, c := range collisions {
		out[i] = Contact{
			CurveID:   c.Curve.ID(),
			CurveName: c.Curve.Name(),
			Distance:  c.Distance,
		}
	}
	return out
}
