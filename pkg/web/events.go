package web

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/teslashibe/animal-detect/internal/log"
	"github.com/teslashibe/animal-detect/pkg/app"
	"github.com/teslashibe/animal-detect/pkg/catalog"
	"github.com/teslashibe/animal-detect/pkg/detection"
	"github.com/teslashibe/animal-detect/pkg/hub"
	"github.com/teslashibe/animal-detect/pkg/playback"
	"github.com/teslashibe/animal-detect/pkg/protocol"
)

// Notifier publishes app notifications as protocol messages on the events
// hub. It implements app.Observer.
type Notifier struct {
	hub    *hub.Hub
	logger *slog.Logger
}

var _ app.Observer = (*Notifier)(nil)

// NewNotifier creates a notifier publishing on h.
func NewNotifier(h *hub.Hub) *Notifier {
	return &Notifier{hub: h, logger: log.Component("web")}
}

func (n *Notifier) publish(msg *protocol.Message, err error) {
	if err != nil {
		n.logger.Error("encode event", "error", err)
		return
	}
	data, err := msg.Bytes()
	if err != nil {
		n.logger.Error("encode event", "error", err)
		return
	}
	n.hub.Broadcast(hub.NewJSONMessage(data))
}

// OnState implements app.Observer.
func (n *Notifier) OnState(s app.Status) {
	n.publish(protocol.NewStateMessage(StateFrom(s)))
}

// OnFrame implements app.Observer.
func (n *Notifier) OnFrame(f app.Frame) {
	n.publish(protocol.NewDetectionsMessage(protocol.DetectionsData{
		RunID:            f.RunID.String(),
		Index:            f.Index,
		Boxes:            BoxesFrom(f.Detections),
		CarnivorousCount: f.Summary.CarnivorousCount,
		Species:          f.Summary.Species(),
	}))
}

// OnNotice implements app.Observer.
func (n *Notifier) OnNotice(r app.Result) {
	n.publish(protocol.NewNoticeMessage(NoticeFrom(r)))
}

// OnError implements app.Observer.
func (n *Notifier) OnError(err error) {
	frame := -1
	code := protocol.CodeInternal
	var fe *playback.FrameError
	if errors.As(err, &fe) {
		frame = fe.Index
		code = protocol.CodeDetection
	}
	n.publish(protocol.NewErrorMessage(code, err.Error(), frame))
}

// StateFrom converts an app status to its wire form.
func StateFrom(s app.Status) protocol.StateData {
	st := protocol.StateData{
		Playback:  s.Playback.String(),
		ModelPath: s.ModelPath,
		MediaPath: s.MediaPath,
		HasModel:  s.HasModel,
		HasImage:  s.HasImage,
		HasVideo:  s.HasVideo,
		Frames:    s.Frames,
		CanPlay:   s.CanPlay(),
		CanPause:  s.CanPause(),
		CanDetect: s.CanDetect(),
		Recording: s.Recording,
	}
	if s.MediaPath != "" {
		st.MediaKind = s.MediaKind.String()
	}
	if s.RunID != uuid.Nil {
		st.RunID = s.RunID.String()
	}
	return st
}

// NoticeFrom converts a single-image result to its wire form.
func NoticeFrom(r app.Result) protocol.NoticeData {
	return protocol.NoticeData{
		Title:            r.Notice.Title,
		Body:             r.Notice.Body,
		CarnivorousCount: r.Summary.CarnivorousCount,
		Species:          r.Summary.Species(),
		Boxes:            BoxesFrom(r.Detections),
	}
}

// BoxesFrom converts labeled detections to wire boxes.
func BoxesFrom(dets []app.Labeled) []protocol.Box {
	out := make([]protocol.Box, len(dets))
	for i, d := range dets {
		out[i] = box(d.Detection, d.Name, d.Carnivorous)
	}
	return out
}

func box(d detection.Detection, name string, carnivorous bool) protocol.Box {
	return protocol.Box{
		X1:          d.Box.Min.X,
		Y1:          d.Box.Min.Y,
		X2:          d.Box.Max.X,
		Y2:          d.Box.Max.Y,
		Confidence:  d.Confidence,
		ClassID:     d.ClassID,
		Name:        name,
		Carnivorous: carnivorous,
	}
}

// CatalogFrom lists the catalog's classes in id order.
func CatalogFrom(c *catalog.Catalog) protocol.CatalogData {
	ids := c.IDs()
	out := protocol.CatalogData{
		Classes:     make([]protocol.ClassInfo, 0, len(ids)),
		Carnivorous: c.Carnivorous(),
	}
	for _, id := range ids {
		name := c.NameOf(id)
		out.Classes = append(out.Classes, protocol.ClassInfo{
			ID:          id,
			Name:        name,
			Carnivorous: c.IsCarnivorous(name),
		})
	}
	return out
}
