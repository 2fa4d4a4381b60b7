package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransferRequest representa uma solicitação de transferência de endereço já
// normalizada (aliases resolvidos pelo normalizer).
type TransferRequest struct {
	SubscriberID string
	ContractID   string
	TechnicianID string

	RequesterName string
	Phone         string

	// ValueType: "taxa", "renovacao" ou vazio.
	ValueType string
	TaxValue  string

	ScheduledDate string // YYYY-MM-DD
	Period        string // manha | tarde | comercial

	// Novo endereço
	Street     string
	Number     string
	District   string
	CEP        string
	City       string
	Complement string
	Latitude   string
	Longitude  string
	CityCode   string // código IBGE, informativo
	CityID     string // id da cidade no cadastro do IXC, quando resolvido

	// Endereço antigo (OS de desativação e histórico)
	OldStreet   string
	OldNumber   string
	OldDistrict string
	OldCEP      string
	OldCity     string

	PortID    string
	PortKnown bool

	// Tri-state: nil = não mexer nos campos de condomínio.
	IsCondominium *bool
	CondominiumID string
	Block         string
	Unit          string
}

// Validate garante os campos obrigatórios antes de qualquer chamada ao IXC.
func (r *TransferRequest) Validate() error {
	if r.SubscriberID == "" || r.ContractID == "" {
		return &ValidationError{Reason: "ID do cliente e contrato são obrigatórios."}
	}
	return nil
}

// TransferResult é o resultado composto de uma saga concluída.
type TransferResult struct {
	TicketID            string `json:"ticketId"`
	TransferOrderID     string `json:"transferOrderId"`
	DeactivationOrderID string `json:"deactivationOrderId"`
}

// EnrichmentResult é o endereço estruturado resolvido a partir de um CEP.
type EnrichmentResult struct {
	CEP       string `json:"cep"`
	Street    string `json:"street"`
	District  string `json:"district"`
	City      string `json:"city"`
	State     string `json:"state"`
	Latitude  string `json:"latitude,omitempty"`
	Longitude string `json:"longitude,omitempty"`
	IBGECode  string `json:"ibgeCode,omitempty"`
	CityID    string `json:"cityId,omitempty"`
}

// Passos da saga, na ordem de execução.
const (
	StepValidateInput           = "validate_input"
	StepResolveLogin            = "resolve_login"
	StepCreateTicket            = "create_ticket"
	StepLocateServiceOrder      = "locate_service_order"
	StepScheduleTransferOrder   = "schedule_transfer_order"
	StepCreateDeactivationOrder = "create_deactivation_order"
	StepUpdateContract          = "update_contract"
)

// Status possíveis de um passo da saga.
const (
	StepPending = "pending"
	StepDone    = "done"
	StepFailed  = "failed"
)

var sagaSteps = []string{
	StepValidateInput,
	StepResolveLogin,
	StepCreateTicket,
	StepLocateServiceOrder,
	StepScheduleTransferOrder,
	StepCreateDeactivationOrder,
	StepUpdateContract,
}

// SagaState é o estado efêmero de uma execução; vive só durante a requisição.
type SagaState struct {
	ID                  string
	StartedAt           time.Time
	LoginID             string
	TicketID            string
	TransferOrderID     string
	DeactivationOrderID string
	Protocols           []string
	Steps               map[string]string
	FailedStep          string
}

// NewSagaState cria o estado inicial com todos os passos pendentes.
func NewSagaState() *SagaState {
	steps := make(map[string]string, len(sagaSteps))
	for _, s := range sagaSteps {
		steps[s] = StepPending
	}
	return &SagaState{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Steps:     steps,
	}
}

// MarkDone registra a conclusão de um passo.
func (s *SagaState) MarkDone(step string) {
	s.Steps[step] = StepDone
}

// MarkFailed registra o primeiro passo que falhou; a saga é terminal a partir daqui.
func (s *SagaState) MarkFailed(step string) {
	s.Steps[step] = StepFailed
	if s.FailedStep == "" {
		s.FailedStep = step
	}
}

// HasSideEffects responde se alguma escrita já aconteceu no IXC. A partir do
// ticket criado, qualquer falha posterior vira PartialSagaFailure.
func (s *SagaState) HasSideEffects() bool {
	return s.TicketID != "" || s.DeactivationOrderID != "" || len(s.Protocols) > 0
}

// ValidationError indica entrada inválida; nenhuma chamada ao IXC foi feita.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NotFoundError indica uma consulta que voltou vazia (IXC ou provedor de CEP).
type NotFoundError struct {
	Entity string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("nenhum registro encontrado em %s", e.Entity)
}

// UpstreamError indica resposta não-sucesso ou corpo ilegível de um sistema externo.
type UpstreamError struct {
	Service string
	Status  int
	Body    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("erro %s: status %d - %s", e.Service, e.Status, e.Body)
}

// PartialSagaFailure indica falha depois de escritas já confirmadas no IXC.
// Carrega todos os identificadores já criados para conclusão/compensação manual.
type PartialSagaFailure struct {
	Step                string   `json:"step"`
	TicketID            string   `json:"ticketId,omitempty"`
	TransferOrderID     string   `json:"transferOrderId,omitempty"`
	DeactivationOrderID string   `json:"deactivationOrderId,omitempty"`
	Protocols           []string `json:"protocols,omitempty"`
	Err                 error    `json:"-"`
}

func (e *PartialSagaFailure) Error() string {
	return fmt.Sprintf("falha no passo %s após escritas no IXC (ticket=%s, os_transferencia=%s): %v",
		e.Step, e.TicketID, e.TransferOrderID, e.Err)
}

func (e *PartialSagaFailure) Unwrap() error {
	return e.Err
}
