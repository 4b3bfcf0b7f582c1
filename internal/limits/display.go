// Package limits bounds the virtual display geometry.
package limits

import (
	"fmt"
	"slices"
)

const (
	DisplayMaxWidth  = 7680
	DisplayMaxHeight = 4320
	// KiCad's plot and DRC dialogs do not fit below this.
	DisplayMinWidth  = 640
	DisplayMinHeight = 480
)

// DisplayDepths are the colour depths Xvfb accepts for a screen.
var DisplayDepths = []int{8, 16, 24, 32}

type DimensionError struct {
	Width, Height int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("display size %dx%d outside %dx%d..%dx%d",
		e.Width, e.Height, DisplayMinWidth, DisplayMinHeight, DisplayMaxWidth, DisplayMaxHeight)
}

// ValidateDisplay rejects sizes KiCad cannot be driven at or Xvfb refuses.
func ValidateDisplay(width, height int) error {
	if width < DisplayMinWidth || height < DisplayMinHeight || width > DisplayMaxWidth || height > DisplayMaxHeight {
		return &DimensionError{Width: width, Height: height}
	}
	return nil
}

// ValidateDepth checks depth against DisplayDepths.
func ValidateDepth(depth int) error {
	if !slices.Contains(DisplayDepths, depth) {
		return fmt.Errorf("display depth %d not one of %v", depth, DisplayDepths)
	}
	return nil
}
