package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/junolabs/qrpoints/internal/catalog"
	"github.com/junolabs/qrpoints/internal/codesapi"
	"github.com/junolabs/qrpoints/internal/shopauth"
	"github.com/junolabs/qrpoints/pkg/qrcode"
	"go.uber.org/zap"
)

const (
	errorCodeUnauthorized = "unauthorized"
	errorCodeInvalid      = "invalid_payload"
	errorCodeNotFound     = "not_found"
	errorCodeStorage      = "storage_error"
	errorCodeUpstream     = "upstream_error"
)

// ShopDataFetcher proxies storefront metadata for the code form.
type ShopDataFetcher interface {
	FetchShopData(ctx context.Context, shopDomain qrcode.ShopDomain) (catalog.ShopData, error)
}

// Server wires the code records API over its dependencies.
type Server struct {
	logger   *zap.Logger
	service  *qrcode.Service
	shopData ShopDataFetcher
	cfg      Config
}

// NewServer constructs the HTTP handler set.
func NewServer(cfg Config, service *qrcode.Service, shopData ShopDataFetcher, logger *zap.Logger) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service dependency is nil")
	}
	if shopData == nil {
		return nil, fmt.Errorf("shop data fetcher dependency is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:   logger,
		service:  service,
		shopData: shopData,
		cfg:      cfg,
	}, nil
}

// Run serves the API until the context is cancelled.
func (server *Server) Run(ctx context.Context) error {
	validator, err := shopauth.New(shopauth.Config{
		SigningKey: []byte(server.cfg.SessionSigningKey),
		Issuer:     server.cfg.SessionIssuer,
		CookieName: server.cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}

	router := SetupRouter(server.cfg, server, validator)
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("qrpoints api listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// SetupRouter assembles the gin engine. Every code and point route sits
// behind the shop session guard.
func SetupRouter(cfg Config, server *Server, validator *shopauth.Validator) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	guarded := router.Group("/")
	guarded.Use(validator.GinMiddleware())

	guarded.POST("/codes", server.handleCreateCode)
	guarded.GET("/codes", server.handleListCodes)
	guarded.GET("/codes/:id", server.handleGetCode)
	guarded.PATCH("/codes/:id", server.handleUpdateCode)
	guarded.DELETE("/codes/:id", server.handleDeleteCode)

	guarded.POST("/points", server.handleStorePoints)
	guarded.PUT("/points/:id", server.handleUpdatePoints)
	guarded.DELETE("/points/:id", server.handleDeletePoints)
	guarded.GET("/points", server.handleListPoints)

	guarded.GET("/shop-data", server.handleShopData)

	return router
}

func (server *Server) handleCreateCode(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	var request codesapi.CreateCodeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, "expected JSON body"))
		return
	}
	input, err := codeInputFromRequest(request)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, err.Error()))
		return
	}
	record, err := server.service.CreateCode(ctx.Request.Context(), shopDomain, input)
	if err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, codePayload(record))
}

func (server *Server) handleListCodes(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	records, err := server.service.ListCodes(ctx.Request.Context(), shopDomain)
	if err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	balances, err := server.service.ListPoints(ctx.Request.Context(), shopDomain)
	if err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	envelope := codesapi.CodeListEnvelope{
		Codes:    make([]codesapi.CodePayload, 0, len(records)),
		Balances: balancePayloads(balances),
	}
	for _, record := range records {
		envelope.Codes = append(envelope.Codes, codePayload(record))
	}
	ctx.JSON(http.StatusOK, envelope)
}

func (server *Server) handleGetCode(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	codeID, err := qrcode.NewCodeID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, "code not found"))
		return
	}
	record, err := server.service.GetCode(ctx.Request.Context(), shopDomain, codeID)
	if err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, codePayload(record))
}

func (server *Server) handleUpdateCode(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	codeID, err := qrcode.NewCodeID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, "code not found"))
		return
	}
	var request codesapi.UpdateCodeRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, "expected JSON body"))
		return
	}
	patch, err := codePatchFromRequest(request)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, err.Error()))
		return
	}
	record, err := server.service.UpdateCode(ctx.Request.Context(), shopDomain, codeID, patch)
	if err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, codePayload(record))
}

func (server *Server) handleDeleteCode(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	codeID, err := qrcode.NewCodeID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, "code not found"))
		return
	}
	if err := server.service.DeleteCode(ctx.Request.Context(), shopDomain, codeID); err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.Status(http.StatusOK)
}

func (server *Server) handleStorePoints(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	var request codesapi.StorePointsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, "expected JSON body"))
		return
	}
	codeID, err := qrcode.NewCodeID(request.CodeID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, err.Error()))
		return
	}
	balance, err := qrcode.NewPointBalance(request.CustomerPoints)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, err.Error()))
		return
	}
	if err := server.service.SavePoints(ctx.Request.Context(), shopDomain, codeID, balance); err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, codesapi.PointsConfirmation{
		Success: true,
		CodeID:  codeID.String(),
		Balance: balance.Int64(),
	})
}

func (server *Server) handleUpdatePoints(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	codeID, err := qrcode.NewCodeID(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, "code not found"))
		return
	}
	var request codesapi.UpdatePointsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, "expected JSON body"))
		return
	}
	balance, err := qrcode.NewPointBalance(request.CustomerPoints)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, err.Error()))
		return
	}
	if err := server.service.SavePoints(ctx.Request.Context(), shopDomain, codeID, balance); err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, codesapi.PointsConfirmation{
		Success: true,
		CodeID:  codeID.String(),
		Balance: balance.Int64(),
	})
}

func (server *Server) handleDeletePoints(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	codeID, err := qrcode.NewCodeID(ctx.Param("id"))
	if err != nil {
		// Nothing to delete for an unparsable id; stay idempotent.
		ctx.JSON(http.StatusOK, codesapi.PointsConfirmation{Success: true, CodeID: ctx.Param("id")})
		return
	}
	if err := server.service.RemovePoints(ctx.Request.Context(), shopDomain, codeID); err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, codesapi.PointsConfirmation{Success: true, CodeID: codeID.String()})
}

func (server *Server) handleListPoints(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	balances, err := server.service.ListPoints(ctx.Request.Context(), shopDomain)
	if err != nil {
		server.respondDomainError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, codesapi.PointsListEnvelope{
		Success:  true,
		Balances: balancePayloads(balances),
	})
}

func (server *Server) handleShopData(ctx *gin.Context) {
	shopDomain, ok := shopauth.ShopFromContext(ctx)
	if !ok {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return
	}
	data, err := server.shopData.FetchShopData(ctx.Request.Context(), shopDomain)
	if err != nil {
		server.logger.Error("shop data fetch failed", zap.Error(err))
		ctx.JSON(http.StatusBadGateway, errorResponse(errorCodeUpstream, "shop data unavailable"))
		return
	}
	ctx.JSON(http.StatusOK, data)
}

// respondDomainError maps domain errors onto status codes without leaking
// storage internals.
func (server *Server) respondDomainError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, qrcode.ErrCodeNotFound):
		ctx.JSON(http.StatusNotFound, errorResponse(errorCodeNotFound, "code not found"))
	case errors.Is(err, qrcode.ErrInvalidTitle),
		errors.Is(err, qrcode.ErrInvalidDestination),
		errors.Is(err, qrcode.ErrInvalidPointBalance),
		errors.Is(err, qrcode.ErrEmptyPatch):
		ctx.JSON(http.StatusBadRequest, errorResponse(errorCodeInvalid, err.Error()))
	default:
		server.logger.Error("store operation failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse(errorCodeStorage, "storage failure"))
	}
}

func codeInputFromRequest(request codesapi.CreateCodeRequest) (qrcode.CodeInput, error) {
	title, err := qrcode.NewCodeTitle(request.Title)
	if err != nil {
		return qrcode.CodeInput{}, err
	}
	destination, err := qrcode.ParseDestination(request.Destination)
	if err != nil {
		return qrcode.CodeInput{}, err
	}
	return qrcode.CodeInput{
		Title:             title,
		ProductReference:  request.ProductReference,
		DiscountReference: request.DiscountReference,
		Destination:       destination,
	}, nil
}

func codePatchFromRequest(request codesapi.UpdateCodeRequest) (qrcode.CodePatch, error) {
	patch := qrcode.CodePatch{
		ProductReference:  request.ProductReference,
		DiscountReference: request.DiscountReference,
	}
	if request.Title != nil {
		title, err := qrcode.NewCodeTitle(*request.Title)
		if err != nil {
			return qrcode.CodePatch{}, err
		}
		patch.Title = &title
	}
	if request.Destination != nil {
		destination, err := qrcode.ParseDestination(*request.Destination)
		if err != nil {
			return qrcode.CodePatch{}, err
		}
		patch.Destination = &destination
	}
	return patch, nil
}

func codePayload(record qrcode.EnrichedRecord) codesapi.CodePayload {
	return codesapi.CodePayload{
		ID:                record.ID.String(),
		ShopDomain:        record.ShopDomain.String(),
		Title:             record.DisplayTitle,
		ProductReference:  record.ProductReference,
		DiscountReference: record.DiscountReference,
		Destination:       record.Destination.String(),
		DestinationURL:    record.DestinationURL,
		CreatedUnixUTC:    record.CreatedUnixUTC,
	}
}

func balancePayloads(balances []qrcode.PointRow) []codesapi.BalancePayload {
	payloads := make([]codesapi.BalancePayload, 0, len(balances))
	for _, row := range balances {
		payloads = append(payloads, codesapi.BalancePayload{
			CodeID:  row.CodeID.String(),
			Balance: row.Balance.Int64(),
		})
	}
	return payloads
}

func errorResponse(code string, message string) codesapi.ErrorEnvelope {
	return codesapi.ErrorEnvelope{
		Error: codesapi.ErrorPayload{
			Code:    code,
			Message: message,
		},
	}
}
