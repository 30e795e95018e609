// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lineage Contributors

package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigil-dev/lineage/graph"
	linerr "github.com/sigil-dev/lineage/pkg/errors"
)

func TestRegistryBuiltinKinds(t *testing.T) {
	reg := graph.NewRegistry()

	for _, name := range []string{
		graph.KindNode, graph.KindLink, graph.KindArtifact,
		graph.KindDatabaseArtifact, graph.KindRemoteArtifact, graph.KindModelArtifact,
	} {
		_, err := reg.Kind(name)
		assert.NoError(t, err, name)
	}

	k, err := reg.Resolve(graph.TableNode, "remote_artifact")
	require.NoError(t, err)
	assert.Equal(t, graph.KindRemoteArtifact, k.Name)
}

func TestRegistryRejectsDiscriminatorReuse(t *testing.T) {
	reg := graph.NewRegistry()

	err := reg.RegisterKind(graph.Kind{
		Name:          "shadow_artifact",
		Table:         graph.TableNode,
		Discriminator: "database_artifact",
	})
	require.Error(t, err)
	assert.True(t, linerr.IsConflict(err))
}

func TestRegistryRejectsMissingDiscriminator(t *testing.T) {
	reg := graph.NewRegistry()

	err := reg.RegisterKind(graph.Kind{Name: "bare", Table: graph.TableNode})
	require.Error(t, err)
	assert.True(t, linerr.IsInvalidInput(err))
}

func TestRegistryDependencyRank(t *testing.T) {
	reg := graph.NewRegistry()

	assert.Equal(t, 0, reg.DependencyRank(graph.TableNode))
	assert.Equal(t, 1, reg.DependencyRank(graph.TableLink))
}

func TestDiscriminatorExpansion(t *testing.T) {
	reg := graph.NewRegistry()

	discs, err := reg.Discriminators([]string{graph.KindArtifact}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"database_artifact", "model_artifact", "remote_artifact"}, discs)

	exact, err := reg.Discriminators([]string{graph.KindDatabaseArtifact}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"database_artifact"}, exact)

	_, err = reg.Discriminators([]string{"phantom"}, false)
	require.Error(t, err)
	assert.True(t, linerr.IsNotFound(err))
}

func TestRegisterModelRejectsDuplicates(t *testing.T) {
	reg := graph.NewRegistry()

	require.NoError(t, graph.RegisterMapModel(reg))
	err := graph.RegisterMapModel(reg)
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeModelTypeConflict))

	_, err = reg.ModelTypeByName("phantom")
	require.Error(t, err)
	assert.True(t, linerr.HasCode(err, linerr.CodeModelTypeUnknown))
}

func TestRegisterModelRequiresInit(t *testing.T) {
	reg := graph.NewRegistry()

	err := reg.RegisterModel(graph.ModelType{Name: "hollow", Version: 1})
	require.Error(t, err)
	assert.True(t, linerr.IsInvalidInput(err))
}
