package toolserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	clerrors "github.com/clarityops/clarity/internal/errors"
	"github.com/clarityops/clarity/internal/remedy"
)

func mustFind(t *testing.T, name string) remedy.Tool {
	t.Helper()
	def, ok := remedy.DefaultCatalog().Find(name)
	require.True(t, ok, "catalog entry %s not found", name)
	return def
}

func TestRemediationToolRendersCommand(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "restart_service"), "auth-service", zap.NewNop())

	payload, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": "auth-service",
	})
	require.NoError(t, err)

	result, ok := payload.(ExecuteResult)
	require.True(t, ok, "expected ExecuteResult, got %T", payload)
	assert.Equal(t, "restart_service", result.Tool)
	assert.Equal(t, "kubectl rollout restart deployment/auth-service -n default", result.CommandText)
	assert.Equal(t, "auth-service", result.TargetComponent)
}

func TestRemediationToolSanitizesServiceName(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "restart_service"), "auth-service", zap.NewNop())

	payload, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": "$(reboot)",
	})
	require.NoError(t, err)

	result := payload.(ExecuteResult)
	assert.Equal(t, "reboot", result.TargetComponent)
	assert.Equal(t, "kubectl rollout restart deployment/reboot -n default", result.CommandText)
}

func TestRemediationToolNamespaceAndReplicas(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "scale_service"), "auth-service", zap.NewNop())

	payload, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": "api-service",
		"namespace":    "Prod-East",
		"replicas":     float64(5),
	})
	require.NoError(t, err)

	result := payload.(ExecuteResult)
	assert.Equal(t, "kubectl scale deployment/api-service --replicas=5 -n prod-east", result.CommandText)
}

func TestRemediationToolDefaultsNamespaceAndReplicas(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "scale_service"), "auth-service", zap.NewNop())

	payload, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": "api-service",
	})
	require.NoError(t, err)

	result := payload.(ExecuteResult)
	assert.Equal(t, "kubectl scale deployment/api-service --replicas=3 -n default", result.CommandText)
}

func TestRemediationToolMissingServiceName(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "restart_service"), "auth-service", zap.NewNop())

	_, err := tool.Run(context.Background(), map[string]interface{}{})
	require.Error(t, err)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeMissingParameter))
}

func TestRemediationToolUnusableServiceNameFallsBackToDefault(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "restart_service"), "user-service", zap.NewNop())

	payload, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": "$$ !!",
	})
	require.NoError(t, err)

	result := payload.(ExecuteResult)
	assert.Equal(t, "user-service", result.TargetComponent)
	assert.Equal(t, "kubectl rollout restart deployment/user-service -n default", result.CommandText)
}

func TestRemediationToolDefaultComponentIsSanitized(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "restart_service"), "$$$", zap.NewNop())

	payload, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": "",
	})
	require.NoError(t, err)
	assert.Equal(t, "auth-service", payload.(ExecuteResult).TargetComponent)
}

func TestRemediationToolRejectsWrongParameterTypes(t *testing.T) {
	tool := newRemediationTool(mustFind(t, "scale_service"), "auth-service", zap.NewNop())

	_, err := tool.Run(context.Background(), map[string]interface{}{
		"service_name": 7,
	})
	require.Error(t, err)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeInvalidInput))

	_, err = tool.Run(context.Background(), map[string]interface{}{
		"service_name": "api-service",
		"replicas":     "five",
	})
	require.Error(t, err)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeInvalidInput))
}

func TestRemediationToolSchemaOffersReplicasOnlyWhenTemplated(t *testing.T) {
	restart := newRemediationTool(mustFind(t, "restart_service"), "auth-service", zap.NewNop())
	scale := newRemediationTool(mustFind(t, "scale_service"), "auth-service", zap.NewNop())

	schema, ok := restart.InputSchema().(map[string]interface{})
	require.True(t, ok)
	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "service_name")
	assert.Contains(t, props, "namespace")
	assert.NotContains(t, props, "replicas")
	assert.Equal(t, []string{"service_name"}, schema["required"])

	scaleProps := scale.InputSchema().(map[string]interface{})["properties"].(map[string]interface{})
	assert.Contains(t, scaleProps, "replicas")
}

func TestRemediationToolAnnotations(t *testing.T) {
	rollback := newRemediationTool(mustFind(t, "suggest_rollback"), "auth-service", zap.NewNop())

	ann := rollback.Annotations()
	require.NotNil(t, ann)
	assert.Equal(t, "Suggest Rollback", ann.Title)
	require.NotNil(t, ann.DestructiveHint)
	assert.True(t, *ann.DestructiveHint)
	assert.False(t, ann.ReadOnlyHint)
	assert.True(t, ann.IdempotentHint)
}

func TestListToolReportsCatalog(t *testing.T) {
	catalog := remedy.DefaultCatalog()
	tool := newListTool(catalog)

	assert.Equal(t, "list_remediation_tools", tool.Name())
	require.NotNil(t, tool.Annotations())
	assert.True(t, tool.Annotations().ReadOnlyHint)

	payload, err := tool.Run(context.Background(), nil)
	require.NoError(t, err)

	list, ok := payload.(toolList)
	require.True(t, ok, "expected toolList, got %T", payload)
	assert.Equal(t, catalog.Names(), list.Tools.Names())
}

func TestGetStringParam(t *testing.T) {
	args := map[string]interface{}{"name": "auth-service", "count": 3}

	val, err := GetStringParam(args, "name", true)
	require.NoError(t, err)
	assert.Equal(t, "auth-service", val)

	val, err = GetStringParam(args, "missing", false)
	require.NoError(t, err)
	assert.Empty(t, val)

	_, err = GetStringParam(args, "missing", true)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeMissingParameter))

	_, err = GetStringParam(args, "count", true)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeInvalidInput))
}

func TestGetIntParam(t *testing.T) {
	args := map[string]interface{}{"replicas": float64(5), "literal": 4, "name": "x"}

	val, err := GetIntParam(args, "replicas", true)
	require.NoError(t, err)
	assert.Equal(t, 5, val)

	val, err = GetIntParam(args, "literal", true)
	require.NoError(t, err)
	assert.Equal(t, 4, val)

	val, err = GetIntParam(args, "missing", false)
	require.NoError(t, err)
	assert.Zero(t, val)

	_, err = GetIntParam(args, "missing", true)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeMissingParameter))

	_, err = GetIntParam(args, "name", true)
	assert.True(t, clerrors.HasCode(err, clerrors.CodeInvalidInput))
}
