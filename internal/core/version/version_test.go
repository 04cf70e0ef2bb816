package version

import (
	"testing"

	kit "rangeload/internal/platform/testkit"
)

func TestInfo(t *testing.T) {
	if got := Info("rangeload-lambda"); got.Service != "rangeload-lambda" || got.Version != "dev" {
		t.Fatalf("Info = %+v", got)
	}
	kit.Swap(t, &version, "v1.2.3")
	kit.Swap(t, &commit, "abcd")
	if got := Info("x"); got.Version != "v1.2.3" || got.Commit != "abcd" {
		t.Fatalf("Info = %+v", got)
	}
}
