package service

import (
	"github.com/sirupsen/logrus"

	"exsim/domain/orderbook"
)

// BookLogger logs every book event at debug level. Attach it only when
// debug logging is on; it builds fields for every event.
type BookLogger struct {
	log logrus.FieldLogger
}

func NewBookLogger(log logrus.FieldLogger) *BookLogger {
	return &BookLogger{log: log}
}

func (l *BookLogger) order(o *orderbook.Order) logrus.FieldLogger {
	return l.log.WithFields(logrus.Fields{
		"order_id":        o.ID(),
		"client_id":       o.ClientID(),
		"client_order_id": o.ClientOrderID(),
		"side":            o.Side().String(),
	})
}

func (l *BookLogger) OnOrderAccepted(time int64, o *orderbook.Order) {
	l.order(o).WithFields(logrus.Fields{"size": o.OriginalSize(), "price": o.Price(), "type": o.Type().String()}).Debug("accepted")
}

func (l *BookLogger) OnOrderRested(time int64, o *orderbook.Order, restSize, price int64) {
	l.order(o).WithFields(logrus.Fields{"size": restSize, "price": price}).Debug("rested")
}

func (l *BookLogger) OnOrderRejected(time int64, o *orderbook.Order, reason orderbook.RejectReason) {
	l.order(o).WithField("reason", reason.String()).Debug("rejected")
}

func (l *BookLogger) OnOrderReduced(time int64, o *orderbook.Order, newTotalSize int64) {
	l.order(o).WithField("total_size", newTotalSize).Debug("reduced")
}

func (l *BookLogger) OnOrderCanceled(time int64, o *orderbook.Order, reason orderbook.CancelReason) {
	l.order(o).WithFields(logrus.Fields{"canceled": o.CanceledSize(), "reason": reason.String()}).Debug("canceled")
}

func (l *BookLogger) OnOrderExecuted(time int64, o *orderbook.Order, side orderbook.ExecuteSide, size, price, executionID, matchID int64) {
	l.order(o).WithFields(logrus.Fields{
		"exec_side":    side.String(),
		"size":         size,
		"price":        price,
		"execution_id": executionID,
		"match_id":     matchID,
	}).Debug("executed")
}

func (l *BookLogger) OnOrderTerminated(time int64, o *orderbook.Order) {
	l.order(o).Debug("terminated")
}

func (l *BookLogger) OnCancelRejected(time int64, orderID int64, reason orderbook.CancelRejectReason) {
	l.log.WithFields(logrus.Fields{"order_id": orderID, "reason": reason.String()}).Debug("cancel rejected")
}

func (l *BookLogger) OnReduceRejected(time int64, orderID int64, reason orderbook.ReduceRejectReason) {
	l.log.WithFields(logrus.Fields{"order_id": orderID, "reason": reason.String()}).Debug("reduce rejected")
}

var _ orderbook.OrderBookListener = (*BookLogger)(nil)
