package overlay

import (
	"sync/atomic"

	"plantbot/control"
	"plantbot/logging"
	"plantbot/tracking"

	"gocv.io/x/gocv"
)

// Window shows the annotated frame and the local map in two OpenCV windows.
// HighGUI is bound to the thread that created the windows, so Show and Close
// must run there. Release is the only method safe from other goroutines.
type Window struct {
	renderer *Renderer
	mapView  *MapView
	log      *logging.Logger

	frame     *gocv.Window
	local     *gocv.Window
	released  atomic.Bool
	destroyed bool
}

// NewWindow opens both windows on the calling thread
func NewWindow(mapSize int) *Window {
	return &Window{
		renderer: NewRenderer(),
		mapView:  NewMapView(mapSize),
		log:      logging.Named("OVERLAY"),
		frame:    gocv.NewWindow("Detected objects"),
		local:    gocv.NewWindow("Local map"),
	}
}

// Show draws res onto a copy of frame and refreshes both windows
func (w *Window) Show(frame gocv.Mat, res tracking.Result, phase control.Phase) {
	if w.released.Load() || w.destroyed || frame.Empty() {
		return
	}

	annotated := frame.Clone()
	defer annotated.Close()
	w.renderer.Draw(annotated, res, phase)

	m := w.mapView.Render(res.Estimates)
	defer m.Close()

	w.frame.IMShow(annotated)
	w.local.IMShow(m)
	w.frame.WaitKey(1)
}

// Release stops all further drawing without touching HighGUI. The windows
// go away on Close or at process exit.
func (w *Window) Release() {
	if w.released.CompareAndSwap(false, true) {
		w.log.Debug().Msg("display released")
	}
}

// Close destroys the windows. It is safe to call more than once.
func (w *Window) Close() {
	w.Release()
	if w.destroyed {
		return
	}
	w.destroyed = true
	if err := w.frame.Close(); err != nil {
		w.log.Warn().Err(err).Msg("close frame window")
	}
	if err := w.local.Close(); err != nil {
		w.log.Warn().Err(err).Msg("close map window")
	}
	w.log.Debug().Msg("windows closed")
}
