package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrijs2005/hoot/internal/common"
	"github.com/dmitrijs2005/hoot/internal/server/models"
)

func TestTotalStorage(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, int64(2147483648), p.TotalStorage(&models.User{}))
	assert.Equal(t, int64(10737418240), p.TotalStorage(&models.User{PatreonMember: true}))
}

func TestAvailableStorage(t *testing.T) {
	p := DefaultPolicy()
	u := &models.User{}

	tests := []struct {
		name  string
		sizes []int64
		want  int64
	}{
		{name: "no tracks", sizes: nil, want: 2147483648},
		{name: "some tracks", sizes: []int64{1000, 2000}, want: 2147483648 - 3000},
		{name: "over after downgrade", sizes: []int64{3 * common.GiB}, want: -1 * common.GiB},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.AvailableStorage(u, tt.sizes)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, p.TotalStorage(u)-UsedStorage(tt.sizes), got)
		})
	}
}

func TestCheck(t *testing.T) {
	p := DefaultPolicy()
	u := &models.User{}

	// 2147483648 - 2000000000 = 147483648 available
	assert.ErrorIs(t, p.Check(u, []int64{1000000000, 1000000000}, 200000000), common.ErrQuotaExceeded)
	assert.NoError(t, p.Check(u, []int64{1000000000, 1000000000}, 147483648))
	assert.NoError(t, p.Check(&models.User{PatreonMember: true}, []int64{2000000000}, 200000000))
	assert.ErrorIs(t, p.Check(u, []int64{3 * common.GiB}, 0), common.ErrQuotaExceeded)
}
