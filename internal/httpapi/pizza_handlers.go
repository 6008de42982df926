package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"jwtpizza.org/internal/audit"
	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/pizza"
)

type franchiseAdminRef struct {
	Email string `json:"email"`
}

type createFranchiseRequest struct {
	Name   string              `json:"name"`
	Admins []franchiseAdminRef `json:"admins"`
}

type createStoreRequest struct {
	Name string `json:"name"`
}

type addMenuItemRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Image       string  `json:"image"`
	Price       float64 `json:"price"`
}

type orderItemRef struct {
	MenuID      string  `json:"menuId"`
	Description string  `json:"description,omitempty"`
	Price       float64 `json:"price,omitempty"`
}

type createOrderRequest struct {
	FranchiseID string         `json:"franchiseId"`
	StoreID     string         `json:"storeId"`
	Items       []orderItemRef `json:"items"`
}

type ordersResponse struct {
	DinerID string        `json:"dinerId"`
	Orders  []pizza.Order `json:"orders"`
	Page    int           `json:"page"`
}

type orderResponse struct {
	Order pizza.Order `json:"order"`
}

func (a *API) handleListFranchises(w http.ResponseWriter, r *http.Request) {
	list, err := a.pizza.ListFranchises(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, auth.ActionListFranchises.String(), err)
		return
	}
	if list == nil {
		list = []pizza.Franchise{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleListUserFranchises(w http.ResponseWriter, r *http.Request) {
	list, err := a.pizza.ListUserFranchises(r.Context(), auth.ActorFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, auth.ActionListUserFranchises.String(), err)
		return
	}
	if list == nil {
		list = []pizza.Franchise{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleCreateFranchise(w http.ResponseWriter, r *http.Request) {
	var req createFranchiseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	emails := make([]string, 0, len(req.Admins))
	for _, adm := range req.Admins {
		emails = append(emails, adm.Email)
	}
	f, err := a.pizza.CreateFranchise(r.Context(), auth.ActorFromContext(r.Context()), req.Name, emails)
	if err != nil {
		a.fail(w, r, auth.ActionCreateFranchise.String(), err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventFranchiseAdd, map[string]any{
		"franchise_id": f.ID,
		"name":         f.Name,
	})
	writeJSON(w, http.StatusOK, f)
}

func (a *API) handleDeleteFranchise(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.pizza.DeleteFranchise(r.Context(), auth.ActorFromContext(r.Context()), id); err != nil {
		a.fail(w, r, auth.ActionDeleteFranchise.String(), err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventFranchiseDel, map[string]any{"franchise_id": id})
	writeJSON(w, http.StatusOK, messageResponse{Message: "franchise deleted"})
}

func (a *API) handleCreateStore(w http.ResponseWriter, r *http.Request) {
	var req createStoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	franchiseID := chi.URLParam(r, "id")
	st, err := a.pizza.CreateStore(r.Context(), auth.ActorFromContext(r.Context()), franchiseID, req.Name)
	if err != nil {
		a.fail(w, r, auth.ActionCreateStore.String(), err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventStoreAdd, map[string]any{
		"franchise_id": franchiseID,
		"store_id":     st.ID,
	})
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleDeleteStore(w http.ResponseWriter, r *http.Request) {
	franchiseID := chi.URLParam(r, "id")
	storeID := chi.URLParam(r, "storeID")
	if err := a.pizza.DeleteStore(r.Context(), auth.ActorFromContext(r.Context()), franchiseID, storeID); err != nil {
		a.fail(w, r, auth.ActionDeleteStore.String(), err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventStoreDel, map[string]any{
		"franchise_id": franchiseID,
		"store_id":     storeID,
	})
	writeJSON(w, http.StatusOK, messageResponse{Message: "store deleted"})
}

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := a.pizza.Menu(r.Context(), auth.ActorFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, auth.ActionViewMenu.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, menu)
}

func (a *API) handleAddMenuItem(w http.ResponseWriter, r *http.Request) {
	var req addMenuItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	menu, err := a.pizza.AddMenuItem(r.Context(), auth.ActorFromContext(r.Context()), pizza.MenuItem{
		Title:       req.Title,
		Description: req.Description,
		Image:       req.Image,
		Price:       req.Price,
	})
	if err != nil {
		a.fail(w, r, auth.ActionAddMenuItem.String(), err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventMenuAdd, map[string]any{"title": req.Title})
	writeJSON(w, http.StatusOK, menu)
}

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "page must be a positive integer")
			return
		}
		page = n
	}
	actor := auth.ActorFromContext(r.Context())
	orders, err := a.pizza.ListOrders(r.Context(), actor, page)
	if err != nil {
		a.fail(w, r, auth.ActionListOrders.String(), err)
		return
	}
	writeJSON(w, http.StatusOK, ordersResponse{DinerID: actor.UserID, Orders: orders, Page: page})
}

func (a *API) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	menuIDs := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		menuIDs = append(menuIDs, it.MenuID)
	}
	order, err := a.pizza.CreateOrder(r.Context(), auth.ActorFromContext(r.Context()), req.FranchiseID, req.StoreID, menuIDs)
	if err != nil {
		a.fail(w, r, auth.ActionCreateOrder.String(), err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventOrderCreate, map[string]any{
		"order_id":     order.ID,
		"franchise_id": order.FranchiseID,
		"items":        len(order.Items),
	})
	writeJSON(w, http.StatusOK, orderResponse{Order: order})
}
