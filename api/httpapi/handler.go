package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"exsim/service"
)

// Handler serves the read-only admin API.
type Handler struct {
	reg   *service.Registry
	scale int32
	log   logrus.FieldLogger
}

func NewHandler(reg *service.Registry, priceScale int32, log logrus.FieldLogger) *Handler {
	return &Handler{reg: reg, scale: priceScale, log: log.WithField("component", "http")}
}

func (h *Handler) SetupRoutes(r *mux.Router) {
	r.HandleFunc("/api/health", h.healthCheck).Methods("GET")
	r.HandleFunc("/api/books", h.listBooks).Methods("GET")
	r.HandleFunc("/api/books/{security}", h.bookStatus).Methods("GET")
	r.HandleFunc("/api/books/{security}/depth", h.depth).Methods("GET")
	r.HandleFunc("/api/books/{security}/orders/{id:[0-9]+}", h.order).Methods("GET")
}

// Router returns a router with every route installed.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	h.SetupRoutes(r)
	return r
}

type level struct {
	Price  string `json:"price"`
	Size   int64  `json:"size"`
	Orders int    `json:"orders"`
}

type bookStatus struct {
	Security   string `json:"security"`
	State      string `json:"state"`
	Halted     bool   `json:"halted"`
	OrderCount int    `json:"order_count"`
	BestBid    string `json:"best_bid,omitempty"`
	BestAsk    string `json:"best_ask,omitempty"`
	IntentSeq  uint64 `json:"intent_seq"`
}

type order struct {
	OrderID       int64  `json:"order_id"`
	ClientID      int64  `json:"client_id"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`
	TimeInForce   string `json:"time_in_force"`
	Price         string `json:"price"`
	OriginalSize  int64  `json:"original_size"`
	TotalSize     int64  `json:"total_size"`
	ExecutedSize  int64  `json:"executed_size"`
	OpenSize      int64  `json:"open_size"`
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"securities": h.reg.Securities()})
}

func (h *Handler) bookStatus(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.book(w, r)
	if !ok {
		return
	}
	st, err := svc.Status(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := bookStatus{
		Security:   st.Security,
		State:      st.State.String(),
		Halted:     st.Halted,
		OrderCount: st.OrderCount,
		IntentSeq:  st.IntentSeq,
	}
	if st.BestBid != 0 {
		out.BestBid = h.price(st.BestBid)
	}
	if st.BestAsk != 0 {
		out.BestAsk = h.price(st.BestAsk)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) depth(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.book(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("levels"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "Invalid levels", http.StatusBadRequest)
			return
		}
		limit = n
	}
	bids, asks, err := svc.Depth(r.Context(), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := struct {
		Security string  `json:"security"`
		Bids     []level `json:"bids"`
		Asks     []level `json:"asks"`
	}{Security: svc.Security(), Bids: make([]level, 0, len(bids)), Asks: make([]level, 0, len(asks))}
	for _, l := range bids {
		out.Bids = append(out.Bids, level{Price: h.price(l.Price), Size: l.OpenSize, Orders: l.Orders})
	}
	for _, l := range asks {
		out.Asks = append(out.Asks, level{Price: h.price(l.Price), Size: l.OpenSize, Orders: l.Orders})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) order(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.book(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}
	o, found, err := svc.Lookup(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !found {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, order{
		OrderID:       o.ID,
		ClientID:      o.ClientID,
		ClientOrderID: o.ClientOrderID,
		Side:          o.Side.String(),
		TimeInForce:   o.TimeInForce.String(),
		Price:         h.price(o.Price),
		OriginalSize:  o.OriginalSize,
		TotalSize:     o.TotalSize,
		ExecutedSize:  o.ExecutedSize,
		OpenSize:      o.TotalSize - o.ExecutedSize,
	})
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) (*service.OrderService, bool) {
	svc, err := h.reg.Get(mux.Vars(r)["security"])
	if err != nil {
		http.Error(w, "Unknown security", http.StatusNotFound)
		return nil, false
	}
	return svc, true
}

func (h *Handler) price(p int64) string {
	return decimal.New(p, -h.scale).String()
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrStopped) {
		http.Error(w, "Shutting down", http.StatusServiceUnavailable)
		return
	}
	h.log.WithError(err).Error("request failed")
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
