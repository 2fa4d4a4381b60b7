package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TransferHandler contém os handlers HTTP
type TransferHandler struct {
	useCase  TransferUseCaseInterface
	resolver AddressResolver
	gateway  IXCGateway
	tracer   trace.Tracer
	cfg      Config
}

// NewTransferHandler cria uma nova instância de TransferHandler
func NewTransferHandler(useCase TransferUseCaseInterface, resolver AddressResolver, gateway IXCGateway, tracer trace.Tracer, cfg Config) *TransferHandler {
	return &TransferHandler{
		useCase:  useCase,
		resolver: resolver,
		gateway:  gateway,
		tracer:   tracer,
		cfg:      cfg,
	}
}

// CreateTransfer inicia a saga de transferência de endereço
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "transfer_saga")
	defer span.End()

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := normalizeTransferInput(raw, h.cfg)
	span.SetAttributes(
		attribute.String("transfer.contract_id", req.ContractID),
		attribute.String("transfer.subscriber_id", req.SubscriberID),
	)

	result, err := h.useCase.ExecuteTransfer(ctx, req)
	if err != nil {
		span.RecordError(err)
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":             "Transferência, desativação e atualização do endereço realizadas com sucesso!",
		"ticketId":            result.TicketID,
		"transferOrderId":     result.TransferOrderID,
		"deactivationOrderId": result.DeactivationOrderID,
	})
}

// UpdateContract é o fluxo reduzido: só o PUT de endereço no contrato
func (h *TransferHandler) UpdateContract(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "update_contract")
	defer span.End()

	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		span.RecordError(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := normalizeTransferInput(raw, h.cfg)
	cancelReason := pickString(raw, "motivo_cancelamento", "cancelReason")
	span.SetAttributes(attribute.String("transfer.contract_id", req.ContractID))

	putResp, err := h.useCase.UpdateContractAddress(ctx, req, cancelReason)
	if err != nil {
		span.RecordError(err)
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Contrato atualizado com sucesso",
		"put_response": putResp,
	})
}

// ResolveCEP expõe o resolver de enriquecimento de endereço
func (h *TransferHandler) ResolveCEP(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "resolve_cep")
	defer span.End()

	cep := c.Param("cep")
	span.SetAttributes(attribute.String("cep", cep))

	result, err := h.resolver.Resolve(ctx, cep)
	if err != nil {
		span.RecordError(err)
		errorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ClientLookup consulta um cliente único no IXC
func (h *TransferHandler) ClientLookup(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	clientID := pickString(raw, "clientId", "query", "id_cliente")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID do cliente é obrigatório."})
		return
	}

	rec, err := h.gateway.FindOne(c.Request.Context(), "cliente", "id", clientID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ContractLookup consulta um contrato único no IXC
func (h *TransferHandler) ContractLookup(c *gin.Context) {
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contractID := pickString(raw, "contractId", "query", "id_contrato")
	if contractID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ID do contrato é obrigatório."})
		return
	}

	rec, err := h.gateway.FindOne(c.Request.Context(), "cliente_contrato", "id", contractID)
	if err != nil {
		errorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HealthCheck verifica a saúde do serviço
func (h *TransferHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.cfg.ServiceName,
	})
}

// errorResponse traduz a taxonomia de erros para a resposta HTTP. A ordem
// importa: PartialSagaFailure embrulha o erro do passo, então é checada antes.
func errorResponse(c *gin.Context, err error) {
	var partial *PartialSagaFailure
	if errors.As(err, &partial) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":               partial.Error(),
			"step":                partial.Step,
			"ticketId":            partial.TicketID,
			"transferOrderId":     partial.TransferOrderID,
			"deactivationOrderId": partial.DeactivationOrderID,
			"protocols":           partial.Protocols,
		})
		return
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
		return
	}

	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
		return
	}

	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		c.JSON(http.StatusBadGateway, gin.H{"error": upstream.Error()})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
