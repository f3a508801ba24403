package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/zlagoda/internal/core/domain"
	"github.com/rl1809/zlagoda/internal/core/service"
)

type HTTPHandler struct {
	checkout  *service.CheckoutService
	inventory *service.InventoryService
	receipts  *service.ReceiptService
	catalog   *service.CatalogService
	logger    *zap.Logger
}

type receiptHeaderHTTP struct {
	ReceiptNumber string          `json:"receipt_number" binding:"required,receipt_number"`
	CardNumber    *string         `json:"card_number" binding:"omitempty,card_number"`
	IssuedAt      *time.Time      `json:"issued_at"`
	Total         decimal.Decimal `json:"total"`
	Tax           decimal.Decimal `json:"tax"`
}

type lineItemHTTP struct {
	ProductCode string          `json:"product_code" binding:"required,product_code"`
	Quantity    int             `json:"quantity" binding:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type CheckoutHTTPRequest struct {
	Header receiptHeaderHTTP `json:"header"`
	Items  []lineItemHTTP    `json:"items" binding:"required,min=1,dive"`
}

type QuoteHTTPRequest struct {
	CardNumber string `json:"card_number" binding:"omitempty,card_number"`
	Items      []struct {
		ProductCode string `json:"product_code" binding:"required,product_code"`
		Quantity    int    `json:"quantity" binding:"required,gt=0"`
	} `json:"items" binding:"required,min=1,dive"`
}

type InventoryHTTPRequest struct {
	ProductID   int64           `json:"product_id" binding:"required,gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity" binding:"gte=0"`
	Promotional bool            `json:"promotional"`
	PromoCode   *string         `json:"promo_code" binding:"omitempty,product_code"`
}

type RestockHTTPRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

type PromotionHTTPRequest struct {
	PromoCode string `json:"promo_code" binding:"required,product_code"`
	Quantity  int    `json:"quantity" binding:"gte=0"`
}

type CardHTTPRequest struct {
	Surname string `json:"surname" binding:"required,max=50"`
	Name    string `json:"name" binding:"required,max=50"`
	Percent int    `json:"percent" binding:"gte=0,lte=100"`
}

type CategoryHTTPRequest struct {
	Name string `json:"category_name" binding:"required,max=50"`
}

type ProductHTTPRequest struct {
	CategoryNumber  int64  `json:"category_number" binding:"required,gt=0"`
	Name            string `json:"product_name" binding:"required,max=50"`
	Producer        string `json:"producer" binding:"required,max=50"`
	Characteristics string `json:"characteristics" binding:"required,max=100"`
}

func NewHTTPHandler(checkout *service.CheckoutService, inventory *service.InventoryService, receipts *service.ReceiptService, catalog *service.CatalogService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{checkout: checkout, inventory: inventory, receipts: receipts, catalog: catalog, logger: logger}
}

// SubmitCheckout records a receipt for the authenticated employee.
func (h *HTTPHandler) SubmitCheckout(c *gin.Context) {
	var req CheckoutHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	in := domain.CheckoutRequest{
		Header: domain.ReceiptHeader{
			Number:     req.Header.ReceiptNumber,
			EmployeeID: actorFrom(c).EmployeeID,
			CardNumber: req.Header.CardNumber,
			Total:      req.Header.Total,
			Tax:        req.Header.Tax,
		},
		Items: make([]domain.LineItem, 0, len(req.Items)),
	}
	if req.Header.IssuedAt != nil {
		in.Header.IssuedAt = req.Header.IssuedAt.UTC()
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, domain.LineItem{ProductCode: it.ProductCode, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}

	header, err := h.checkout.SubmitCheckout(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}

	in.Header = header
	c.JSON(http.StatusCreated, domain.Receipt{Header: header, Lines: in.Lines()})
}

func (h *HTTPHandler) Quote(c *gin.Context) {
	var req QuoteHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	items := make([]service.QuoteItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.QuoteItem{ProductCode: it.ProductCode, Quantity: it.Quantity})
	}

	q, err := h.receipts.Quote(c.Request.Context(), items, req.CardNumber)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *HTTPHandler) GetReceipt(c *gin.Context) {
	receipt, err := h.receipts.Get(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ListReceipts accepts employee_id, from and to (RFC 3339) query parameters.
func (h *HTTPHandler) ListReceipts(c *gin.Context) {
	filter := domain.ReceiptFilter{EmployeeID: c.Query("employee_id")}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(c, &domain.ValidationError{Field: p.name, Message: "must be an RFC 3339 timestamp"})
			return
		}
		*p.dst = t.UTC()
	}

	headers, err := h.receipts.List(c.Request.Context(), actorFrom(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if headers == nil {
		headers = []domain.ReceiptHeader{}
	}
	c.JSON(http.StatusOK, gin.H{"receipts": headers})
}

// DeleteReceipt does not return sold units to stock.
func (h *HTTPHandler) DeleteReceipt(c *gin.Context) {
	if err := h.receipts.Delete(c.Request.Context(), c.Param("number")); err != nil {
		writeError(c, err)
		return
	}
	h.logger.Info("receipt deleted", zap.String("receipt_number", c.Param("number")), zap.String("employee_id", actorFrom(c).EmployeeID))
	c.Status(http.StatusNoContent)
}

// ListInventory accepts promotional (true or false) and sort (quantity or name) query parameters.
func (h *HTTPHandler) ListInventory(c *gin.Context) {
	filter := domain.InventoryFilter{SortBy: domain.InventorySort(c.Query("sort"))}
	if v := c.Query("promotional"); v != "" {
		promo, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, &domain.ValidationError{Field: "promotional", Message: "must be true or false"})
			return
		}
		filter.Promotional = &promo
	}

	rows, err := h.inventory.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if rows == nil {
		rows = []domain.InventoryListing{}
	}
	c.JSON(http.StatusOK, gin.H{"store_products": rows})
}

func (h *HTTPHandler) GetInventory(c *gin.Context) {
	rec, err := h.inventory.Get(c.Request.Context(), c.Param("upc"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *HTTPHandler) SaveInventory(c *gin.Context) {
	var req InventoryHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	rec := domain.InventoryRecord{
		ProductCode: c.Param("upc"),
		ProductID:   req.ProductID,
		UnitPrice:   req.UnitPrice,
		Quantity:    req.Quantity,
		Promotional: req.Promotional,
		PromoCode:   req.PromoCode,
	}
	if err := h.inventory.Save(c.Request.Context(), rec); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *HTTPHandler) Restock(c *gin.Context) {
	var req RestockHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	rec, err := h.inventory.Restock(c.Request.Context(), c.Param("upc"), req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *HTTPHandler) Promote(c *gin.Context) {
	var req PromotionHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	rec, err := h.inventory.Promote(c.Request.Context(), c.Param("upc"), req.PromoCode, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *HTTPHandler) DeleteInventory(c *gin.Context) {
	if err := h.inventory.Delete(c.Request.Context(), c.Param("upc")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListCards accepts search (surname or name fragment) and percent query parameters.
func (h *HTTPHandler) ListCards(c *gin.Context) {
	filter := domain.CardFilter{Search: c.Query("search")}
	if v := c.Query("percent"); v != "" {
		percent, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, &domain.ValidationError{Field: "percent", Message: "must be an integer"})
			return
		}
		filter.Percent = &percent
	}

	cards, err := h.receipts.ListCards(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if cards == nil {
		cards = []domain.LoyaltyCard{}
	}
	c.JSON(http.StatusOK, gin.H{"customer_cards": cards})
}

func (h *HTTPHandler) GetCard(c *gin.Context) {
	card, err := h.receipts.GetCard(c.Request.Context(), c.Param("number"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *HTTPHandler) SaveCard(c *gin.Context) {
	var req CardHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	card := domain.LoyaltyCard{Number: c.Param("number"), Surname: req.Surname, Name: req.Name, Percent: req.Percent}
	if err := h.receipts.SaveCard(c.Request.Context(), card); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (h *HTTPHandler) DeleteCard(c *gin.Context) {
	if err := h.receipts.DeleteCard(c.Request.Context(), c.Param("number")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ListCategories(c *gin.Context) {
	categories, err := h.catalog.ListCategories(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if categories == nil {
		categories = []domain.Category{}
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *HTTPHandler) GetCategory(c *gin.Context) {
	number, ok := idParam(c, "number", "category_number")
	if !ok {
		return
	}
	category, err := h.catalog.GetCategory(c.Request.Context(), number)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *HTTPHandler) SaveCategory(c *gin.Context) {
	number, ok := idParam(c, "number", "category_number")
	if !ok {
		return
	}
	var req CategoryHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	category := domain.Category{Number: number, Name: req.Name}
	if err := h.catalog.SaveCategory(c.Request.Context(), category); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, category)
}

func (h *HTTPHandler) DeleteCategory(c *gin.Context) {
	number, ok := idParam(c, "number", "category_number")
	if !ok {
		return
	}
	if err := h.catalog.DeleteCategory(c.Request.Context(), number); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListProducts accepts category and search (name fragment) query parameters.
func (h *HTTPHandler) ListProducts(c *gin.Context) {
	filter := domain.ProductFilter{Search: c.Query("search")}
	if v := c.Query("category"); v != "" {
		number, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(c, &domain.ValidationError{Field: "category", Message: "must be an integer"})
			return
		}
		filter.CategoryNumber = number
	}

	products, err := h.catalog.ListProducts(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *HTTPHandler) GetProduct(c *gin.Context) {
	id, ok := idParam(c, "id", "product_id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) SaveProduct(c *gin.Context) {
	id, ok := idParam(c, "id", "product_id")
	if !ok {
		return
	}
	var req ProductHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	product := domain.Product{
		ID:              id,
		CategoryNumber:  req.CategoryNumber,
		Name:            req.Name,
		Producer:        req.Producer,
		Characteristics: req.Characteristics,
	}
	if err := h.catalog.SaveProduct(c.Request.Context(), product); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	id, ok := idParam(c, "id", "product_id")
	if !ok {
		return
	}
	if err := h.catalog.DeleteProduct(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// idParam parses a numeric path parameter, writing a validation error when it is not one.
func idParam(c *gin.Context, name, field string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		writeError(c, &domain.ValidationError{Field: field, Message: "must be an integer"})
		return 0, false
	}
	return id, true
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
