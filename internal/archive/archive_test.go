// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package archive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContainerName(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://acct.blob.core.windows.net/dynhb-batches?sv=2023", "dynhb-batches?sv=2023"},
		{"https://acct.blob.core.windows.net/dynhb-batches", "dynhb-batches"},
		{"dynhb-batches", "dynhb-batches"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, containerName(c.url))
	}
}
