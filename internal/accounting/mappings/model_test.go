package mappings

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubRepo map[string]string

func (s stubRepo) Get(_ context.Context, _ int64, module, key string) (AccountMapping, error) {
	code, ok := s[module+"."+key]
	if !ok {
		return AccountMapping{}, ErrMappingNotFound
	}
	return AccountMapping{Module: module, Key: key, AccountCode: code}, nil
}

func TestDefaultMapResolvesMethods(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)

	cases := map[string]string{"cash": "1101", "QRIS": "1102", "bank_transfer": "1102", "debit_card": "1103", "cheque": "1101"}
	for method, want := range cases {
		got, ok := m.Code(ModuleCash, method)
		require.True(t, ok)
		require.Equal(t, want, got, method)
	}
	code, ok := m.Code(ModuleAP, KeyControl)
	require.True(t, ok)
	require.Equal(t, "2101", code)
	_, ok = m.Code("PAYROLL", "anything")
	require.False(t, ok)
}

func TestLoadOverridesSingleKeys(t *testing.T) {
	m, err := Load(strings.NewReader("modules:\n  cash:\n    qris: \"1109\"\n"))
	require.NoError(t, err)
	code, _ := m.Code(ModuleCash, "qris")
	require.Equal(t, "1109", code)
	code, _ = m.Code(ModuleCash, "card")
	require.Equal(t, "1103", code)
}

func TestLoadRejectsEmptyCode(t *testing.T) {
	_, err := Load(strings.NewReader("modules:\n  AP:\n    control: \"\"\n"))
	require.Error(t, err)
}

func TestResolverPrefersTenantOverride(t *testing.T) {
	m, err := Default()
	require.NoError(t, err)
	r := NewResolver(m, stubRepo{"CASH.default": "1199"})

	code, ok, err := r.Code(context.Background(), 1, ModuleCash, "card")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1199", code)

	code, _, err = r.Code(context.Background(), 1, ModuleAR, KeyControl)
	require.NoError(t, err)
	require.Equal(t, "1201", code)
}
