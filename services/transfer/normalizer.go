package main

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// O frontend manda os campos ora em inglês, ora em português. Cada campo
// lógico tem uma lista ordenada de chaves candidatas; a primeira presente e
// não-vazia vence.

// pickString resolve um campo por lista de aliases.
func pickString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = strings.TrimSpace(t)
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		default:
			continue
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// pickBool resolve um booleano tri-state: nil quando nenhuma chave está presente.
func pickBool(raw map[string]any, keys ...string) *bool {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			b := t
			return &b
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "sim", "s", "1":
				b := true
				return &b
			case "false", "nao", "não", "n", "0":
				b := false
				return &b
			}
		}
	}
	return nil
}

// normalizeTransferInput resolve todos os aliases do corpo bruto. Nunca falha:
// campo opcional ausente vira vazio/omitido; a validação fica para depois.
func normalizeTransferInput(raw map[string]any, cfg Config) TransferRequest {
	req := TransferRequest{
		SubscriberID: pickString(raw, "clientId", "id_cliente"),
		ContractID:   pickString(raw, "contractId", "id_contrato"),
		TechnicianID: pickString(raw, "technicianId", "id_tecnico"),

		RequesterName: pickString(raw, "nome_cliente", "requesterName"),
		Phone:         pickString(raw, "telefone", "phone"),

		ValueType: pickString(raw, "valueType", "valor"),
		TaxValue:  pickString(raw, "taxValue", "valor_taxa"),

		ScheduledDate: pickString(raw, "scheduledDate", "data_agendamento"),
		Period:        pickString(raw, "period", "periodo"),

		Street:     pickString(raw, "address", "endereco"),
		Number:     pickString(raw, "number", "numero"),
		District:   pickString(raw, "neighborhood", "bairro"),
		CEP:        pickString(raw, "cep"),
		City:       pickString(raw, "city", "cidade"),
		Complement: pickString(raw, "complement", "complemento"),
		Latitude:   pickString(raw, "latitude", "lat"),
		Longitude:  pickString(raw, "longitude", "lon", "lng"),
		CityCode:   pickString(raw, "ibge", "codigo_ibge", "cityCode"),

		OldStreet:   pickString(raw, "oldAddress", "endereco_antigo"),
		OldNumber:   pickString(raw, "oldNumber", "old_numero"),
		OldDistrict: pickString(raw, "oldNeighborhood", "old_bairro"),
		OldCEP:      pickString(raw, "oldCep", "cep_antigo"),
		OldCity:     pickString(raw, "oldCity", "cidade_antiga"),

		PortID: pickString(raw, "portaNumber", "des_porta"),

		IsCondominium: pickBool(raw, "isCondominium", "condominio"),
		CondominiumID: pickString(raw, "condominiumId", "id_condominio"),
		Block:         pickString(raw, "block", "bloco"),
		Unit:          pickString(raw, "unit", "apartamento"),
	}

	if req.TechnicianID == "" {
		req.TechnicianID = cfg.DefaultTechnicianID
	}
	if req.Period == "" {
		req.Period = "comercial"
	}

	if known := pickBool(raw, "portKnown", "porta_conhecida"); known != nil {
		req.PortKnown = *known
	} else {
		req.PortKnown = req.PortID != ""
	}

	return req
}

// valueText é o texto de valor que entra na mensagem do ticket.
func valueText(req TransferRequest) string {
	switch req.ValueType {
	case "taxa":
		return req.TaxValue
	case "renovacao":
		return "Renovação"
	default:
		return ""
	}
}

// bestTimeCode converte o período em texto livre para o vocabulário de uma
// letra do IXC. Entrada não reconhecida (inclusive vazia) cai em Q (comercial).
func bestTimeCode(period string) string {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "manha", "manhã", "m":
		return "M"
	case "tarde", "t":
		return "T"
	case "noite", "n":
		return "N"
	case "comercial", "q":
		return "Q"
	default:
		return "Q"
	}
}

// formatCEP formata exibição NNNNN-NNN quando sobram exatamente 8 dígitos;
// qualquer outro comprimento passa intacto — validação fica com o IXC.
func formatCEP(raw string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) != 8 {
		return raw
	}
	return d[:5] + "-" + d[5:]
}

// Horário de início da visita por período.
var periodHours = map[string]string{
	"comercial": "10:00:00",
	"manha":     "09:00:00",
	"tarde":     "14:00:00",
}

// formatScheduleDate converte YYYY-MM-DD em DD/MM/YYYY HH:MM:SS conforme o
// período. Data que não parseia passa intacta.
func formatScheduleDate(dateISO, period string) string {
	if dateISO == "" {
		return ""
	}
	datePart := strings.SplitN(dateISO, "T", 2)[0]
	dt, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return dateISO
	}
	hour, ok := periodHours[strings.ToLower(strings.TrimSpace(period))]
	if !ok {
		hour = periodHours["comercial"]
	}
	return dt.Format("02/01/2006") + " " + hour
}

var flexibleDateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05",
	"02/01/2006",
}

func parseFlexibleDate(s string) (time.Time, error) {
	for _, layout := range flexibleDateLayouts {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt, nil
		}
	}
	return time.Time{}, fmt.Errorf("formato de data não reconhecido: %q", s)
}

// reformatDate re-emite uma data no layout esperado pelo IXC. Falha de parse
// devolve o valor original — reformatação é best-effort, nunca erro duro.
func reformatDate(value, layout string) string {
	if value == "" {
		return value
	}
	dt, err := parseFlexibleDate(value)
	if err != nil {
		log.Printf("⚠️  data mantida sem reformatar: %v", err)
		return value
	}
	return dt.Format(layout)
}

// Campos de data do contrato e seus layouts de saída.
var contractDateFields = map[string]string{
	"data":                  "02/01/2006",
	"data_expiracao":        "02/01/2006",
	"data_ativacao":         "02/01/2006",
	"data_renovacao":        "02/01/2006",
	"data_cadastro_sistema": "02/01/2006 15:04:05",
}

// recString lê um campo do registro do IXC como string.
func recString(rec map[string]any, key string) string {
	v, ok := rec[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ContractPatch é o registro base do contrato mais overrides nomeados. Omissão
// e esvaziamento explícito são coisas distintas: cleared força "" no campo,
// removed tira o campo do payload de vez.
type ContractPatch struct {
	base      map[string]any
	overrides map[string]any
	cleared   []string
	removed   []string
}

// Apply materializa o payload final do PUT. Idempotente: aplicar duas vezes
// com a mesma entrada produz o mesmo registro.
func (p *ContractPatch) Apply() map[string]any {
	out := make(map[string]any, len(p.base)+len(p.overrides))
	for k, v := range p.base {
		out[k] = v
	}
	for k, v := range p.overrides {
		out[k] = v
	}
	for _, k := range p.cleared {
		out[k] = ""
	}
	for _, k := range p.removed {
		delete(out, k)
	}
	return out
}

// buildContractPatch monta o patch canônico sobre o registro atual do contrato.
// cancelReason vazio preserva o motivo existente (ou " " quando ausente, que o
// IXC exige no PUT).
func buildContractPatch(existing map[string]any, req TransferRequest, cancelReason string) *ContractPatch {
	overrides := map[string]any{
		"endereco": req.Street,
		"numero":   req.Number,
		"bairro":   req.District,
		"cep":      formatCEP(req.CEP),
		"cidade":   req.City,
		// endereço novo nunca é o endereço padrão cadastrado do cliente
		"endereco_padrao_cliente": "N",
	}

	// complemento acompanha o endereço: ausente no pedido limpa o campo
	overrides["complemento"] = req.Complement

	if req.Latitude != "" && req.Longitude != "" {
		overrides["latitude"] = req.Latitude
		overrides["longitude"] = req.Longitude
	}
	if req.CityID != "" {
		overrides["id_cidade"] = req.CityID
	}

	for field, layout := range contractDateFields {
		if current := recString(existing, field); current != "" {
			overrides[field] = reformatDate(current, layout)
		}
	}

	switch {
	case cancelReason != "":
		overrides["motivo_cancelamento"] = cancelReason
	case recString(existing, "motivo_cancelamento") == "":
		overrides["motivo_cancelamento"] = " "
	}

	patch := &ContractPatch{
		base:      existing,
		overrides: overrides,
		// o IXC gerencia esse timestamp; devolver o valor lido quebra o PUT
		removed: []string{"ultima_atualizacao"},
	}

	if req.IsCondominium != nil {
		if *req.IsCondominium {
			if req.CondominiumID != "" {
				overrides["id_condominio"] = req.CondominiumID
			}
			if req.Block != "" {
				overrides["bloco"] = req.Block
			}
			if req.Unit != "" {
				overrides["apartamento"] = req.Unit
			}
		} else {
			patch.cleared = []string{"id_condominio", "bloco", "apartamento"}
		}
	}

	return patch
}
