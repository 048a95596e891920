package stereo

import "fmt"

// Board describes the chessboard used for calibration: inner corner
// counts per row and column plus the printed square size in
// millimeters. The default target is 9x6 corners at 25mm.
type Board struct {
	Cols       int     `json:"cols"`
	Rows       int     `json:"rows"`
	SquareSize float64 `json:"square_size_mm"`
}

// CornerCount returns the number of inner corners one detection must
// contain.
func (b Board) CornerCount() int {
	return b.Cols * b.Rows
}

// Validate checks the board geometry.
func (b Board) Validate() error {
	if b.Cols < 2 || b.Rows < 2 {
		return fmt.Errorf("board must have at least 2x2 inner corners, got %dx%d", b.Cols, b.Rows)
	}
	if b.SquareSize <= 0 {
		return fmt.Errorf("board square size must be positive, got %f", b.SquareSize)
	}
	return nil
}

// ObjectPoints returns the board corners in the board's own frame,
// row-major with z fixed at 0, matching the detection order used by
// corner finders.
func (b Board) ObjectPoints() []Point3 {
	pts := make([]Point3, 0, b.CornerCount())
	for r := 0; r < b.Rows; r++ {
		for c := 0; c < b.Cols; c++ {
			pts = append(pts, Point3{
				X: float64(c) * b.SquareSize,
				Y: float64(r) * b.SquareSize,
				Z: 0,
			})
		}
	}
	return pts
}

// ViewPair holds one synchronized chessboard detection: the same
// physical corners seen by both cameras, in identical order.
type ViewPair struct {
	Left  []Point2 `json:"left"`
	Right []Point2 `json:"right"`
}

// ObservationSet is the input to Solve: a board description plus the
// matched corner detections collected across views.
type ObservationSet struct {
	Board       Board      `json:"board"`
	ImageWidth  int        `json:"image_width"`
	ImageHeight int        `json:"image_height"`
	Views       []ViewPair `json:"views"`
}

// Validate checks that every view carries a full set of corners for
// both cameras.
func (s *ObservationSet) Validate() error {
	if err := s.Board.Validate(); err != nil {
		return err
	}
	if s.ImageWidth <= 0 || s.ImageHeight <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", s.ImageWidth, s.ImageHeight)
	}
	want := s.Board.CornerCount()
	for i, v := range s.Views {
		if len(v.Left) != want || len(v.Right) != want {
			return fmt.Errorf("view %d: expected %d corners per camera, got %d left / %d right",
				i, want, len(v.Left), len(v.Right))
		}
	}
	return nil
}
