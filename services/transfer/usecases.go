package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// TransferUseCaseInterface define a interface para os handlers
type TransferUseCaseInterface interface {
	ExecuteTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	UpdateContractAddress(ctx context.Context, req TransferRequest, cancelReason string) (map[string]any, error)
}

// TransferUseCase orquestra a saga de transferência de endereço: sequência
// estritamente ordenada de escritas no IXC, sem retry e sem compensação
// automática — cada passo depende de um identificador produzido pelo anterior.
type TransferUseCase struct {
	gateway  IXCGateway
	resolver AddressResolver
	tracer   trace.Tracer
	cfg      Config

	sagasStarted metric.Int64Counter
	sagasFailed  metric.Int64Counter
}

// NewTransferUseCase cria uma nova instância de TransferUseCase
func NewTransferUseCase(gateway IXCGateway, resolver AddressResolver, tracer trace.Tracer, cfg Config) *TransferUseCase {
	meter := otel.Meter("transfer-service")
	started, _ := meter.Int64Counter("transfer_sagas_started_total")
	failed, _ := meter.Int64Counter("transfer_sagas_failed_total")

	return &TransferUseCase{
		gateway:      gateway,
		resolver:     resolver,
		tracer:       tracer,
		cfg:          cfg,
		sagasStarted: started,
		sagasFailed:  failed,
	}
}

// ExecuteTransfer executa a saga completa:
// ValidateInput → ResolveLogin → CreateTicket → LocateServiceOrder →
// ScheduleTransferOrder → CreateDeactivationOrder → UpdateContract.
// Falha em qualquer passo é terminal; artefatos já criados no IXC permanecem.
func (uc *TransferUseCase) ExecuteTransfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	state := NewSagaState()
	uc.sagasStarted.Add(ctx, 1)

	// ValidateInput: nenhuma chamada ao IXC antes daqui
	if err := req.Validate(); err != nil {
		return nil, uc.fail(ctx, state, StepValidateInput, err)
	}
	state.MarkDone(StepValidateInput)

	log.Printf("🚀 [SAGA %s] iniciando | contrato=%s cliente=%s", state.ID, req.ContractID, req.SubscriberID)

	// Enriquecimento de coordenadas é best-effort, fora da máquina de estados
	uc.enrichCoordinates(ctx, &req)

	dateStr := formatScheduleDate(req.ScheduledDate, req.Period)
	ticketMessage := composeTicketMessage(req, dateStr)

	// ResolveLogin
	ctxStep, span := uc.stepSpan(ctx, StepResolveLogin, state)
	loginRec, err := uc.gateway.FindOne(ctxStep, "radusuarios", "id_contrato", req.ContractID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			err = &NotFoundError{Entity: "radusuarios", Reason: "login não encontrado para o contrato " + req.ContractID}
		}
		return nil, uc.failSpan(ctx, span, state, StepResolveLogin, err)
	}
	state.LoginID = recString(loginRec, "id")
	span.End()
	state.MarkDone(StepResolveLogin)
	log.Printf("✅ [SAGA %s] login resolvido: %s", state.ID, state.LoginID)

	// CreateTicket: protocolo de atendimento é gerado antes do POST
	ctxStep, span = uc.stepSpan(ctx, StepCreateTicket, state)
	protocol, err := uc.gateway.GenerateProtocol(ctxStep)
	if err != nil {
		return nil, uc.failSpan(ctx, span, state, StepCreateTicket, err)
	}
	state.Protocols = append(state.Protocols, protocol)

	ticketPayload := map[string]any{
		"tipo":                   "C",
		"protocolo":              protocol,
		"id_cliente":             req.SubscriberID,
		"id_login":               state.LoginID,
		"id_contrato":            req.ContractID,
		"id_assunto":             "80",
		"menssagem":              ticketMessage, // grafia do campo é do IXC
		"origem_endereco":        "CC",
		"id_responsavel_tecnico": req.TechnicianID,
		"titulo":                 "Transferência de endereço",
		"su_status":              "AG",
		"id_ticket_setor":        "3",
		"prioridade":             "M",
		"id_wfl_processo":        "8",
		"setor":                  "3",
	}
	ticketRec, err := uc.gateway.Create(ctxStep, "su_ticket", ticketPayload)
	if err != nil {
		return nil, uc.failSpan(ctx, span, state, StepCreateTicket, err)
	}
	state.TicketID = recString(ticketRec, "id")
	span.SetAttributes(attribute.String("saga.ticket_id", state.TicketID))
	span.End()
	state.MarkDone(StepCreateTicket)
	log.Printf("✅ [SAGA %s] ticket criado: %s (protocolo %s)", state.ID, state.TicketID, protocol)

	// LocateServiceOrder: o IXC processa o ticket de forma síncrona na prática,
	// mas a OS ainda é localizada por consulta separada — uma única, sem polling
	ctxStep, span = uc.stepSpan(ctx, StepLocateServiceOrder, state)
	orderRec, err := uc.gateway.FindOne(ctxStep, "su_oss_chamado", "id_ticket", state.TicketID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			err = &NotFoundError{Entity: "su_oss_chamado", Reason: "Nenhuma OS encontrada para o ticket criado."}
		}
		return nil, uc.failSpan(ctx, span, state, StepLocateServiceOrder, err)
	}
	state.TransferOrderID = recString(orderRec, "id")
	span.SetAttributes(attribute.String("saga.transfer_order_id", state.TransferOrderID))
	span.End()
	state.MarkDone(StepLocateServiceOrder)
	log.Printf("✅ [SAGA %s] OS localizada: %s", state.ID, state.TransferOrderID)

	// ScheduleTransferOrder: reescreve a OS como visita de transferência
	existingMessage := recString(orderRec, "mensagem")
	if existingMessage == "" {
		existingMessage = ticketMessage
	}

	schedulePayload := map[string]any{
		"tipo":                  "C",
		"id":                    state.TransferOrderID,
		"id_cliente":            req.SubscriberID,
		"id_login":              state.LoginID,
		"id_contrato_kit":       req.ContractID,
		"id_tecnico":            req.TechnicianID,
		"melhor_horario_agenda": bestTimeCode(req.Period),
		"status":                "AG",
		"id_filial":             uc.cfg.BranchID,
		"id_assunto":            "258",
		"setor":                 "1",
		"prioridade":            "N",
		"origem_endereco":       "CC",
		"mensagem_resposta":     "Agendado via API - Marques",
		"endereco":              req.Street,
		"numero":                req.Number,
		"bairro":                req.District,
		"cep":                   formatCEP(req.CEP),
		"cidade":                req.City,
		"complemento":           req.Complement,
		// o fluxo não modela hora de término: início e fim recebem o mesmo valor
		"data_agenda":       dateStr,
		"data_agenda_final": dateStr,
		"mensagem":          existingMessage,
	}
	if req.Latitude != "" && req.Longitude != "" {
		schedulePayload["latitude"] = req.Latitude
		schedulePayload["longitude"] = req.Longitude
	}
	applyCondominium(schedulePayload, req)

	ctxStep, span = uc.stepSpan(ctx, StepScheduleTransferOrder, state)
	if _, err := uc.gateway.Update(ctxStep, "su_oss_chamado", state.TransferOrderID, schedulePayload); err != nil {
		return nil, uc.failSpan(ctx, span, state, StepScheduleTransferOrder, err)
	}
	span.End()
	state.MarkDone(StepScheduleTransferOrder)
	log.Printf("✅ [SAGA %s] OS %s agendada como transferência (%s)", state.ID, state.TransferOrderID, dateStr)

	// CreateDeactivationOrder: segunda OS, no endereço antigo
	ctxStep, span = uc.stepSpan(ctx, StepCreateDeactivationOrder, state)
	protocol, err = uc.gateway.GenerateProtocol(ctxStep)
	if err != nil {
		return nil, uc.failSpan(ctx, span, state, StepCreateDeactivationOrder, err)
	}
	state.Protocols = append(state.Protocols, protocol)

	deactivationPayload := map[string]any{
		"tipo":                   "C",
		"protocolo":              protocol,
		"id_cliente":             req.SubscriberID,
		"id_login":               state.LoginID,
		"id_contrato_kit":        req.ContractID,
		"mensagem":               composeDeactivationNote(req),
		"id_responsavel_tecnico": req.TechnicianID,
		"id_tecnico":             req.TechnicianID,
		"data_agenda":            dateStr,
		"data_agenda_final":      dateStr,
		"endereco":               req.OldStreet,
		"numero":                 req.OldNumber,
		"bairro":                 req.OldDistrict,
		"cep":                    formatCEP(req.OldCEP),
		"cidade":                 req.OldCity,
		"origem_endereco":        "M",
		"id_assunto":             "17",
		"titulo":                 "Desativação de porta",
		"status":                 "AG",
		"prioridade":             "N",
		"setor":                  "1",
		"id_filial":              uc.cfg.BranchID,
	}
	deactivationRec, err := uc.gateway.Create(ctxStep, "su_oss_chamado", deactivationPayload)
	if err != nil {
		return nil, uc.failSpan(ctx, span, state, StepCreateDeactivationOrder, err)
	}
	state.DeactivationOrderID = recString(deactivationRec, "id")
	span.SetAttributes(attribute.String("saga.deactivation_order_id", state.DeactivationOrderID))
	span.End()
	state.MarkDone(StepCreateDeactivationOrder)
	log.Printf("✅ [SAGA %s] OS de desativação criada: %s", state.ID, state.DeactivationOrderID)

	// UpdateContract: re-lê o contrato para não sobrescrever campos alheios
	ctxStep, span = uc.stepSpan(ctx, StepUpdateContract, state)
	contractRec, err := uc.gateway.FindOne(ctxStep, "cliente_contrato", "id", req.ContractID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			err = &NotFoundError{Entity: "cliente_contrato", Reason: "Contrato não encontrado"}
		}
		return nil, uc.failSpan(ctx, span, state, StepUpdateContract, err)
	}

	patch := buildContractPatch(contractRec, req, "")
	if _, err := uc.gateway.Update(ctxStep, "cliente_contrato", req.ContractID, patch.Apply()); err != nil {
		return nil, uc.failSpan(ctx, span, state, StepUpdateContract, err)
	}
	span.End()
	state.MarkDone(StepUpdateContract)

	log.Printf("🏁 [SAGA %s] concluída | ticket=%s os_transferencia=%s os_desativacao=%s",
		state.ID, state.TicketID, state.TransferOrderID, state.DeactivationOrderID)

	return &TransferResult{
		TicketID:            state.TicketID,
		TransferOrderID:     state.TransferOrderID,
		DeactivationOrderID: state.DeactivationOrderID,
	}, nil
}

// UpdateContractAddress é o fluxo reduzido: normalização + um único PUT no
// contrato, sem ticket nem OS.
func (uc *TransferUseCase) UpdateContractAddress(ctx context.Context, req TransferRequest, cancelReason string) (map[string]any, error) {
	if req.ContractID == "" {
		return nil, &ValidationError{Reason: "ID do contrato (contractId) é obrigatório."}
	}
	if cancelReason == "" {
		cancelReason = " "
	}

	contractRec, err := uc.gateway.FindOne(ctx, "cliente_contrato", "id", req.ContractID)
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return nil, &NotFoundError{Entity: "cliente_contrato", Reason: "Contrato não encontrado"}
		}
		return nil, err
	}

	patch := buildContractPatch(contractRec, req, cancelReason)
	putResp, err := uc.gateway.Update(ctx, "cliente_contrato", req.ContractID, patch.Apply())
	if err != nil {
		return nil, err
	}

	// leitura de confirmação, best-effort como no serviço original
	if _, err := uc.gateway.FindOne(ctx, "cliente_contrato", "id", req.ContractID); err != nil {
		log.Printf("⚠️  confirmação pós-PUT do contrato %s falhou: %v", req.ContractID, err)
	}

	log.Printf("✅ contrato %s atualizado", req.ContractID)
	return putResp, nil
}

// enrichCoordinates consulta o resolver quando o pedido chega sem coordenadas.
// Falha de enriquecimento nunca derruba a saga.
func (uc *TransferUseCase) enrichCoordinates(ctx context.Context, req *TransferRequest) {
	if uc.resolver == nil || req.CEP == "" {
		return
	}
	if req.Latitude != "" && req.Longitude != "" && req.CityID != "" {
		return
	}

	result, err := uc.resolver.Resolve(ctx, req.CEP)
	if err != nil {
		log.Printf("ℹ️  enriquecimento do CEP %s indisponível: %v", req.CEP, err)
		return
	}

	if req.Latitude == "" || req.Longitude == "" {
		req.Latitude = result.Latitude
		req.Longitude = result.Longitude
	}
	if req.CityCode == "" {
		req.CityCode = result.IBGECode
	}
	if req.CityID == "" {
		req.CityID = result.CityID
	}
}

// applyCondominium aplica a regra tri-state nos payloads de OS: false limpa,
// true define só o que veio, ausente não toca.
func applyCondominium(payload map[string]any, req TransferRequest) {
	if req.IsCondominium == nil {
		return
	}
	if !*req.IsCondominium {
		payload["id_condominio"] = ""
		payload["bloco"] = ""
		payload["apartamento"] = ""
		return
	}
	if req.CondominiumID != "" {
		payload["id_condominio"] = req.CondominiumID
	}
	if req.Block != "" {
		payload["bloco"] = req.Block
	}
	if req.Unit != "" {
		payload["apartamento"] = req.Unit
	}
}

// stepSpan cria o span filho de um passo da saga com os ids produzidos até aqui.
func (uc *TransferUseCase) stepSpan(ctx context.Context, step string, state *SagaState) (context.Context, trace.Span) {
	ctx, span := uc.tracer.Start(ctx, "saga."+step)
	attrs := []attribute.KeyValue{
		attribute.String("saga.id", state.ID),
		attribute.String("saga.step", step),
	}
	if state.TicketID != "" {
		attrs = append(attrs, attribute.String("saga.ticket_id", state.TicketID))
	}
	if state.TransferOrderID != "" {
		attrs = append(attrs, attribute.String("saga.transfer_order_id", state.TransferOrderID))
	}
	span.SetAttributes(attrs...)
	return ctx, span
}

// fail registra a falha terminal do passo. Com escritas já confirmadas no IXC
// a falha vira PartialSagaFailure, carregando todos os ids criados.
func (uc *TransferUseCase) fail(ctx context.Context, state *SagaState, step string, err error) error {
	state.MarkFailed(step)
	uc.sagasFailed.Add(ctx, 1, metric.WithAttributes(attribute.String("step", step)))
	log.Printf("❌ [SAGA %s] falha no passo %s: %v", state.ID, step, err)

	if state.HasSideEffects() {
		return &PartialSagaFailure{
			Step:                step,
			TicketID:            state.TicketID,
			TransferOrderID:     state.TransferOrderID,
			DeactivationOrderID: state.DeactivationOrderID,
			Protocols:           state.Protocols,
			Err:                 err,
		}
	}
	return err
}

// failSpan encerra o span do passo com o erro antes de delegar para fail.
func (uc *TransferUseCase) failSpan(ctx context.Context, span trace.Span, state *SagaState, step string, err error) error {
	span.RecordError(err)
	span.End()
	return uc.fail(ctx, state, step, err)
}

// composeTicketMessage monta a descrição estruturada do ticket de transferência.
func composeTicketMessage(req TransferRequest, dateStr string) string {
	port := req.PortID
	if !req.PortKnown || port == "" {
		port = "porta não informada"
	}

	msg := fmt.Sprintf(`
Quem receberá: %s
Contato: %s
Títular/Responsável Legal: %s
Valor: %s
Data/Período: %s - %s
*Qualquer valor referente ao serviço deverá ser pago no momento da visita técnica, cliente ciente.

Cliente solicita transferência de endereço.
Endereço atual/Desativação de porta: %s, %s - %s / %s
Novo endereço: %s, %s - %s, %s
`,
		req.RequesterName, req.Phone, req.RequesterName, valueText(req), dateStr, req.Period,
		req.OldStreet, req.OldNumber, req.OldDistrict, port,
		req.Street, req.Number, req.District, formatCEP(req.CEP))

	return strings.TrimSpace(msg)
}

// composeDeactivationNote monta a nota curta da OS de desativação.
func composeDeactivationNote(req TransferRequest) string {
	return fmt.Sprintf("\nDesativar porta: %s\nCliente mudando para %s, %s - %s, %s",
		req.PortID, req.Street, req.Number, req.District, formatCEP(req.CEP))
}
