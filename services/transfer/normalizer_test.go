package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{
		ServiceName:         "transfer-service",
		DefaultTechnicianID: "147",
		BranchID:            "2",
	}
}

func TestBestTimeCode(t *testing.T) {
	cases := map[string]string{
		"manha":     "M",
		"manhã":     "M",
		"tarde":     "T",
		"noite":     "N",
		"comercial": "Q",
		"m":         "M",
		"t":         "T",
		"n":         "N",
		"q":         "Q",
		"":          "Q",
		"Xyz":       "Q",
		"MANHA":     "M",
		"  tarde ":  "T",
	}

	for input, expected := range cases {
		if got := bestTimeCode(input); got != expected {
			t.Errorf("bestTimeCode(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestFormatCEP(t *testing.T) {
	cases := map[string]string{
		"85501000":    "85501-000",
		"85501-000":   "85501-000",
		"85.501-000":  "85501-000",
		"8550100":     "8550100",
		"855010001":   "855010001",
		"":            "",
		"sem numero":  "sem numero",
		" 85501000 t": "85501-000",
	}

	for input, expected := range cases {
		if got := formatCEP(input); got != expected {
			t.Errorf("formatCEP(%q) = %q, expected %q", input, got, expected)
		}
	}
}

func TestFormatScheduleDate(t *testing.T) {
	cases := []struct {
		date     string
		period   string
		expected string
	}{
		{"2025-03-10", "manha", "10/03/2025 09:00:00"},
		{"2025-03-10", "tarde", "10/03/2025 14:00:00"},
		{"2025-03-10", "comercial", "10/03/2025 10:00:00"},
		{"2025-03-10", "qualquer", "10/03/2025 10:00:00"},
		{"2025-03-10T00:00:00", "manha", "10/03/2025 09:00:00"},
		{"", "manha", ""},
		{"10/03/2025", "manha", "10/03/2025"}, // não parseia como ISO: passa intacta
	}

	for _, tc := range cases {
		if got := formatScheduleDate(tc.date, tc.period); got != tc.expected {
			t.Errorf("formatScheduleDate(%q, %q) = %q, expected %q", tc.date, tc.period, got, tc.expected)
		}
	}
}

func TestReformatDate(t *testing.T) {
	assert.Equal(t, "10/03/2025", reformatDate("2025-03-10", "02/01/2006"))
	assert.Equal(t, "10/03/2025 08:30:00", reformatDate("2025-03-10 08:30:00", "02/01/2006 15:04:05"))
	assert.Equal(t, "10/03/2025", reformatDate("10/03/2025", "02/01/2006"))
	// parse impossível: valor original preservado, nunca erro
	assert.Equal(t, "data estranha", reformatDate("data estranha", "02/01/2006"))
	assert.Equal(t, "", reformatDate("", "02/01/2006"))
}

func TestNormalizeTransferInputAliases(t *testing.T) {
	raw := map[string]any{
		"clientId":        "123",
		"id_contrato":     "456",
		"endereco":        "Rua Nova",
		"number":          float64(42),
		"oldNeighborhood": "Centro",
		"periodo":         "manha",
		"cep":             "85501000",
		"des_porta":       "OLT-03/12",
	}

	req := normalizeTransferInput(raw, testConfig())

	assert.Equal(t, "123", req.SubscriberID)
	assert.Equal(t, "456", req.ContractID)
	assert.Equal(t, "Rua Nova", req.Street)
	assert.Equal(t, "42", req.Number)
	assert.Equal(t, "Centro", req.OldDistrict)
	assert.Equal(t, "manha", req.Period)
	assert.Equal(t, "OLT-03/12", req.PortID)
	assert.True(t, req.PortKnown)
	// defaults
	assert.Equal(t, "147", req.TechnicianID)
	assert.Nil(t, req.IsCondominium)
}

func TestNormalizeTransferInputAliasOrder(t *testing.T) {
	// a primeira chave presente e não-vazia vence
	raw := map[string]any{
		"address":  "",
		"endereco": "Rua Alias",
		"clientId": "1",
		"period":   "tarde",
		"periodo":  "manha",
	}

	req := normalizeTransferInput(raw, testConfig())
	assert.Equal(t, "Rua Alias", req.Street)
	assert.Equal(t, "tarde", req.Period)
}

func TestNormalizeTransferInputDefaults(t *testing.T) {
	req := normalizeTransferInput(map[string]any{}, testConfig())

	assert.Equal(t, "", req.SubscriberID)
	assert.Equal(t, "comercial", req.Period)
	assert.Equal(t, "147", req.TechnicianID)
	assert.False(t, req.PortKnown)
	assert.Nil(t, req.IsCondominium)
}

func TestPickBoolTriState(t *testing.T) {
	assert.Nil(t, pickBool(map[string]any{}, "isCondominium"))

	b := pickBool(map[string]any{"isCondominium": true}, "isCondominium")
	if assert.NotNil(t, b) {
		assert.True(t, *b)
	}

	b = pickBool(map[string]any{"isCondominium": "false"}, "isCondominium")
	if assert.NotNil(t, b) {
		assert.False(t, *b)
	}

	b = pickBool(map[string]any{"condominio": "sim"}, "isCondominium", "condominio")
	if assert.NotNil(t, b) {
		assert.True(t, *b)
	}
}

func TestValueText(t *testing.T) {
	assert.Equal(t, "150,00", valueText(TransferRequest{ValueType: "taxa", TaxValue: "150,00"}))
	assert.Equal(t, "Renovação", valueText(TransferRequest{ValueType: "renovacao"}))
	assert.Equal(t, "", valueText(TransferRequest{}))
}

func baseContractRecord() map[string]any {
	return map[string]any{
		"id":                    "456",
		"endereco":              "Rua Velha",
		"numero":                "10",
		"bairro":                "Antigo",
		"cep":                   "85500-000",
		"cidade":                "Pato Branco",
		"complemento":           "fundos",
		"data":                  "2024-01-05",
		"data_ativacao":         "2024-01-06",
		"data_cadastro_sistema": "2024-01-05 11:22:33",
		"data_renovacao":        "quando der",
		"motivo_cancelamento":   "",
		"ultima_atualizacao":    "2025-08-01 10:00:00",
		"id_condominio":         "77",
		"bloco":                 "B",
		"apartamento":           "12",
		"vendedor":              "9",
	}
}

func transferFixture() TransferRequest {
	return TransferRequest{
		SubscriberID: "123",
		ContractID:   "456",
		Street:       "Rua Nova",
		Number:       "42",
		District:     "Jardim",
		CEP:          "85501000",
		City:         "Pato Branco",
	}
}

func TestBuildContractPatchOverlaysAddress(t *testing.T) {
	patch := buildContractPatch(baseContractRecord(), transferFixture(), "")
	out := patch.Apply()

	assert.Equal(t, "Rua Nova", out["endereco"])
	assert.Equal(t, "42", out["numero"])
	assert.Equal(t, "Jardim", out["bairro"])
	assert.Equal(t, "85501-000", out["cep"])
	assert.Equal(t, "Pato Branco", out["cidade"])
	assert.Equal(t, "N", out["endereco_padrao_cliente"])
	// complemento acompanha o endereço novo: ausente limpa
	assert.Equal(t, "", out["complemento"])
	// campo gerenciado pelo IXC nunca volta
	_, present := out["ultima_atualizacao"]
	assert.False(t, present)
	// campo não tocado pelo fluxo é preservado
	assert.Equal(t, "9", out["vendedor"])
}

func TestBuildContractPatchDates(t *testing.T) {
	out := buildContractPatch(baseContractRecord(), transferFixture(), "").Apply()

	assert.Equal(t, "05/01/2024", out["data"])
	assert.Equal(t, "06/01/2024", out["data_ativacao"])
	assert.Equal(t, "05/01/2024 11:22:33", out["data_cadastro_sistema"])
	// data que não parseia passa intacta
	assert.Equal(t, "quando der", out["data_renovacao"])
}

func TestBuildContractPatchCancelReason(t *testing.T) {
	// motivo vazio no registro vira " " (o IXC exige a chave no PUT)
	out := buildContractPatch(baseContractRecord(), transferFixture(), "").Apply()
	assert.Equal(t, " ", out["motivo_cancelamento"])

	// motivo já preenchido é preservado
	rec := baseContractRecord()
	rec["motivo_cancelamento"] = "mudança de cidade"
	out = buildContractPatch(rec, transferFixture(), "").Apply()
	assert.Equal(t, "mudança de cidade", out["motivo_cancelamento"])

	// override explícito do fluxo reduzido vence sempre
	out = buildContractPatch(rec, transferFixture(), "pedido do cliente").Apply()
	assert.Equal(t, "pedido do cliente", out["motivo_cancelamento"])
}

func TestBuildContractPatchCondominiumTriState(t *testing.T) {
	truthy := true
	falsy := false

	// ausente: campos de condomínio não são mencionados pelo patch
	out := buildContractPatch(baseContractRecord(), transferFixture(), "").Apply()
	assert.Equal(t, "77", out["id_condominio"])
	assert.Equal(t, "B", out["bloco"])
	assert.Equal(t, "12", out["apartamento"])

	// false: limpa sempre, mesmo com campos informados
	req := transferFixture()
	req.IsCondominium = &falsy
	req.CondominiumID = "99"
	req.Block = "C"
	out = buildContractPatch(baseContractRecord(), req, "").Apply()
	assert.Equal(t, "", out["id_condominio"])
	assert.Equal(t, "", out["bloco"])
	assert.Equal(t, "", out["apartamento"])

	// true: define só o que veio, preserva o resto do registro
	req = transferFixture()
	req.IsCondominium = &truthy
	req.CondominiumID = "99"
	out = buildContractPatch(baseContractRecord(), req, "").Apply()
	assert.Equal(t, "99", out["id_condominio"])
	assert.Equal(t, "B", out["bloco"])
	assert.Equal(t, "12", out["apartamento"])
}

func TestBuildContractPatchCoordinates(t *testing.T) {
	// sem coordenadas no pedido, o patch não mexe nelas
	out := buildContractPatch(baseContractRecord(), transferFixture(), "").Apply()
	_, present := out["latitude"]
	assert.False(t, present)

	req := transferFixture()
	req.Latitude = "-26.2295"
	req.Longitude = "-52.6716"
	req.CityID = "321"
	out = buildContractPatch(baseContractRecord(), req, "").Apply()
	assert.Equal(t, "-26.2295", out["latitude"])
	assert.Equal(t, "-52.6716", out["longitude"])
	assert.Equal(t, "321", out["id_cidade"])
}

func TestBuildContractPatchIdempotent(t *testing.T) {
	patch := buildContractPatch(baseContractRecord(), transferFixture(), "")

	first := patch.Apply()
	second := patch.Apply()
	assert.Equal(t, first, second)

	// patch reconstruído com a mesma entrada também converge
	again := buildContractPatch(baseContractRecord(), transferFixture(), "").Apply()
	assert.Equal(t, first, again)
}
