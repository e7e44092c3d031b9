package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
		{
			name: "wrapped timeout",
			err:  fmt.Errorf("classify: %w", ErrClassificationTimeout),
			want: UserMessage(ErrClassificationTimeout),
		},
		{
			name: "classification wraps cause",
			err:  fmt.Errorf("%w: %w", ErrClassification, errors.New("quota exceeded")),
			want: "Falha ao analisar o documento com IA. Verifique sua chave de API ou o formato do arquivo.",
		},
		{
			name: "billing from another session",
			err:  fmt.Errorf("CreditPurchase: %w", ErrBillingNotOwned),
			want: "Pagamento não encontrado para esta sessão.",
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: "Erro desconhecido ao analisar arquivo.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		input   string
		want    Frequency
		wantErr bool
	}{
		{"monthly", FrequencyMonthly, false},
		{"Yearly", FrequencyYearly, false},
		{"  ANUAL ", FrequencyYearly, false},
		{"", FrequencyMonthly, false},
		{"weekly", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFrequency(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFrequency(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFrequency(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSubscriptionItemValidate(t *testing.T) {
	valid := SubscriptionItem{Name: "Netflix", Amount: 55.9, Frequency: FrequencyMonthly, Category: "Streaming", Confidence: 0.9}

	tests := []struct {
		name    string
		mutate  func(*SubscriptionItem)
		wantErr bool
	}{
		{"valid", func(*SubscriptionItem) {}, false},
		{"yearly", func(it *SubscriptionItem) { it.Frequency = FrequencyYearly }, false},
		{"blank name", func(it *SubscriptionItem) { it.Name = "  " }, true},
		{"negative amount", func(it *SubscriptionItem) { it.Amount = -50 }, true},
		{"zero amount", func(it *SubscriptionItem) { it.Amount = 0 }, true},
		{"weekly", func(it *SubscriptionItem) { it.Frequency = "weekly" }, true},
		{"empty frequency", func(it *SubscriptionItem) { it.Frequency = "" }, true},
		{"confidence above one", func(it *SubscriptionItem) { it.Confidence = 1.2 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := valid
			tt.mutate(&item)
			if err := item.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
