package handler_test

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/internal/stock/handler"
	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/internal/stock/service"
	"github.com/larder/larder-backend/pkg/logger"
	"github.com/larder/larder-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	// Short mode runs without Docker; every test skips itself at the
	// first suite call.
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}
	defer suite.Cleanup(ctx)
	defer testutil.TerminateContainer(ctx)

	os.Exit(m.Run())
}

const testWarehouse = "warehouse-main"

// newLedgerRouter builds a router with the ledger routes mounted the way the
// service does it.
func newLedgerRouter() chi.Router {
	ingredientRepo := repository.NewIngredientRepository(suite.DB)
	txnRepo := repository.NewTransactionRepository(suite.DB)
	testLog := logger.New("test", "test")

	ledger := service.NewLedgerService(ingredientRepo, txnRepo, nil, testWarehouse, testLog)
	reservations := service.NewReservationManager(txnRepo, testWarehouse, 2*time.Second, testLog)
	h := handler.NewLedgerHandler(ledger, reservations, testLog)

	r := chi.NewRouter()
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Record)
		r.Get("/{id}", h.Get)
	})
	r.Get("/ingredients/{id}/stock", h.Stock)
	r.Get("/on-hand", h.OnHand)
	return r
}

func seedIngredient(t *testing.T, ctx context.Context) *repository.Ingredient {
	t.Helper()

	fixture := suite.Fixtures.Ingredient()
	ing := &repository.Ingredient{
		ID:               fixture.ID,
		Name:             fixture.Name,
		Unit:             fixture.Unit,
		Category:         fixture.Category,
		ReorderThreshold: fixture.ReorderThreshold,
		LastUnitPrice:    fixture.LastUnitPrice,
	}
	require.NoError(t, repository.NewIngredientRepository(suite.DB).Create(ctx, ing))
	return ing
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

func TestLedgerHandler_RecordAndProject(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	router := newLedgerRouter()

	req := testutil.NewHTTPRequest(http.MethodPost, "/transactions", handler.RecordTransactionRequest{
		IngredientID: ing.ID,
		Kind:         "delivery_in",
		Quantity:     decimal.NewFromInt(10),
		Reference:    "INV-100",
	})
	rr := testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	var resp apiResponse
	testutil.ParseJSONBody(t, rr, &resp)
	require.True(t, resp.Success)

	var txn repository.InventoryTransaction
	require.NoError(t, json.Unmarshal(resp.Data, &txn))
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, testWarehouse, txn.LocationID, "location defaults to the warehouse")
	assert.True(t, txn.Quantity.Equal(decimal.NewFromInt(10)))

	// Consumption is sent as a positive magnitude and booked negative.
	req = testutil.NewHTTPRequest(http.MethodPost, "/transactions", handler.RecordTransactionRequest{
		IngredientID: ing.ID,
		Kind:         "consumption",
		Quantity:     decimal.NewFromInt(3),
	})
	rr = testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusCreated)

	req = testutil.NewHTTPRequest(http.MethodGet, "/ingredients/"+ing.ID+"/stock", nil)
	rr = testutil.ExecuteRequest(router, req)
	testutil.AssertStatus(t, rr, http.StatusOK)

	testutil.ParseJSONBody(t, rr, &resp)
	var stock handler.StockResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stock))
	assert.True(t, stock.OnHand.Equal(decimal.NewFromInt(7)), "on hand %s", stock.OnHand)
	assert.True(t, stock.Available.Equal(decimal.NewFromInt(7)))
	assert.True(t, stock.Reserved.IsZero())
}

func TestLedgerHandler_Record_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	router := newLedgerRouter()

	tests := []struct {
		name       string
		payload    handler.RecordTransactionRequest
		wantStatus int
	}{
		{
			name: "unknown kind",
			payload: handler.RecordTransactionRequest{
				IngredientID: ing.ID,
				Kind:         "teleport",
				Quantity:     decimal.NewFromInt(1),
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "zero quantity",
			payload: handler.RecordTransactionRequest{
				IngredientID: ing.ID,
				Kind:         "delivery_in",
				Quantity:     decimal.Zero,
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown ingredient",
			payload: handler.RecordTransactionRequest{
				IngredientID: "00000000-0000-0000-0000-000000000000",
				Kind:         "delivery_in",
				Quantity:     decimal.NewFromInt(1),
			},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name: "missing ingredient",
			payload: handler.RecordTransactionRequest{
				Kind:     "delivery_in",
				Quantity: decimal.NewFromInt(1),
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.NewHTTPRequest(http.MethodPost, "/transactions", tt.payload)
			rr := testutil.ExecuteRequest(router, req)
			testutil.AssertStatus(t, rr, tt.wantStatus)

			var resp apiResponse
			testutil.ParseJSONBody(t, rr, &resp)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
		})
	}
}

func TestLedgerHandler_List_FilterByKind(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	router := newLedgerRouter()

	for _, p := range []handler.RecordTransactionRequest{
		{IngredientID: ing.ID, Kind: "delivery_in", Quantity: decimal.NewFromInt(10)},
		{IngredientID: ing.ID, Kind: "consumption", Quantity: decimal.NewFromInt(2)},
		{IngredientID: ing.ID, Kind: "consumption", Quantity: decimal.NewFromInt(1)},
	} {
		rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/transactions", p))
		testutil.AssertStatus(t, rr, http.StatusCreated)
	}

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet, "/transactions?kind=consumption", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp apiResponse
	testutil.ParseJSONBody(t, rr, &resp)
	var txns []repository.InventoryTransaction
	require.NoError(t, json.Unmarshal(resp.Data, &txns))
	require.Len(t, txns, 2)
	for _, txn := range txns {
		assert.Equal(t, repository.KindConsumption, txn.Kind)
		assert.True(t, txn.Quantity.IsNegative())
	}
}

func TestLedgerHandler_Stock_AsOf(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	ing := seedIngredient(t, ctx)
	router := newLedgerRouter()

	before := time.Now().UTC().Add(-time.Second)

	rr := testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodPost, "/transactions", handler.RecordTransactionRequest{
		IngredientID: ing.ID,
		Kind:         "delivery_in",
		Quantity:     decimal.NewFromInt(5),
	}))
	testutil.AssertStatus(t, rr, http.StatusCreated)

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet,
		"/ingredients/"+ing.ID+"/stock?as_of="+before.Format(time.RFC3339), nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	var resp apiResponse
	testutil.ParseJSONBody(t, rr, &resp)
	var stock handler.StockResponse
	require.NoError(t, json.Unmarshal(resp.Data, &stock))
	assert.True(t, stock.OnHand.IsZero(), "historical projection predates the delivery")

	rr = testutil.ExecuteRequest(router, testutil.NewHTTPRequest(http.MethodGet,
		"/ingredients/"+ing.ID+"/stock?as_of=yesterday", nil))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
