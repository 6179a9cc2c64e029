package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/guildbank/backend/internal/services"
	"github.com/stretchr/testify/assert"
)

func TestRequestValidation(t *testing.T) {
	vh := services.NewValidationHelper()

	cases := []struct {
		name string
		dst  func() any
		body string
		ok   bool
	}{
		{"transfer", func() any { return &transferRequest{} }, `{"from_id":"a","to_id":"b","amount":5}`, true},
		{"transfer numeric ids", func() any { return &transferRequest{} }, `{"from_id":1234565,"to_id":42,"amount":5}`, true},
		{"transfer without recipient", func() any { return &transferRequest{} }, `{"from_id":"a","amount":5}`, false},
		{"transfer blank sender", func() any { return &transferRequest{} }, `{"from_id":"  ","to_id":"b","amount":5}`, false},
		{"transfer without amount", func() any { return &transferRequest{} }, `{"from_id":"a","to_id":"b"}`, false},
		{"modify add", func() any { return &modifyRequest{} }, `{"user_id":"a","amount":5,"operation":"add"}`, true},
		{"modify remove", func() any { return &modifyRequest{} }, `{"user_id":"a","amount":5,"operation":"remove"}`, true},
		{"modify unknown operation", func() any { return &modifyRequest{} }, `{"user_id":"a","amount":5,"operation":"set"}`, false},
		{"modify without operation", func() any { return &modifyRequest{} }, `{"user_id":"a","amount":5}`, false},
		{"member transfer", func() any { return &memberTransferRequest{} }, `{"to_user_id":"b","amount":0}`, true},
		{"member transfer without amount", func() any { return &memberTransferRequest{} }, `{"to_user_id":"b"}`, false},
		{"admin amount", func() any { return &amountRequest{} }, `{"amount":0}`, true},
		{"admin amount missing", func() any { return &amountRequest{} }, `{}`, false},
		{"link", func() any { return &linkRequest{} }, `{"minecraft_username":"Steve"}`, true},
		{"link name too long", func() any { return &linkRequest{} }, `{"minecraft_username":"` + strings.Repeat("s", 18) + `"}`, false},
		{"play reward without player", func() any { return &playRewardRequest{} }, `{}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))

			ok := vh.DecodeJSON(w, r, tc.dst())

			assert.Equal(t, tc.ok, ok, w.Body.String())
			if !tc.ok {
				assert.Equal(t, http.StatusBadRequest, w.Code)
			}
		})
	}
}
