package display

import (
	"fmt"
	"time"
)

// Attributes are the physical characteristics of one display config.
type Attributes struct {
	// VSyncPeriod is the frame interval of the mode.
	VSyncPeriod time.Duration
	// Width and Height are the mode's pixel dimensions.
	Width  uint32
	Height uint32
	// XDPI and YDPI are dots per 1000 inches, zero when the connector
	// does not report a physical size.
	XDPI uint32
	YDPI uint32
}

const umPerInch = 25400

// Attributes reports the attributes of one of the display's configs,
// identified by mode id as returned from DisplayConfigs.
func (m *Manager) Attributes(display int, configID uint32) (Attributes, error) {
	conn, err := m.res.ConnectorForDisplay(display)
	if err != nil {
		return Attributes{}, err
	}
	mode, ok := conn.ModeByID(configID)
	if !ok {
		return Attributes{}, fmt.Errorf("%w: no mode %d on display %d", ErrBadConfig, configID, display)
	}

	refresh := mode.Refresh()
	if refresh <= 0 {
		refresh = 60
	}
	attrs := Attributes{
		VSyncPeriod: time.Duration(float64(time.Second) / refresh),
		Width:       mode.Width(),
		Height:      mode.Height(),
	}
	if w, h := conn.SizeMM(); w != 0 && h != 0 {
		attrs.XDPI = mode.Width() * umPerInch / w
		attrs.YDPI = mode.Height() * umPerInch / h
	}
	return attrs, nil
}
