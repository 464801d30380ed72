package route_test

import (
	"testing"

	"github.com/oagw/gateway/domain/route"
)

func httpRoute(method, path string, priority int, seq uint64) route.Route {
	r := route.Route{
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{Methods: []string{method}, Path: path, PathSuffixMode: route.PathSuffixDisabled}},
		Priority:   priority,
		Enabled:    true,
	}
	return r.WithSequence(seq)
}

func TestResolve_NoMatch(t *testing.T) {
	_, ok := route.Resolve(nil, "GET", "/x")
	if ok {
		t.Error("expected no match for an empty route set")
	}
}

func TestResolve_HigherPriorityWins(t *testing.T) {
	low := httpRoute("GET", "/v1/a", 1, 0)
	high := httpRoute("GET", "/v1/a", 5, 1)

	got, ok := route.Resolve([]route.Route{low, high}, "GET", "/v1/a")
	if !ok || got.Priority != 5 {
		t.Fatalf("expected the higher-priority route, got %+v ok=%v", got, ok)
	}
}

func TestResolve_EqualPriorityLongerPathWins(t *testing.T) {
	short := httpRoute("GET", "/v1", 1, 0)
	long := httpRoute("GET", "/v1/chat", 1, 1)

	got, ok := route.Resolve([]route.Route{short, long}, "GET", "/v1/chat")
	if !ok || got.MatchRules.HTTP.Path != "/v1/chat" {
		t.Fatalf("expected the more specific route, got %+v ok=%v", got, ok)
	}
}

func TestResolve_EqualSpecificityEarlierCreationWins(t *testing.T) {
	earlier := httpRoute("GET", "/v1/a", 1, 0)
	later := httpRoute("GET", "/v1/a", 1, 1)

	got, ok := route.Resolve([]route.Route{later, earlier}, "GET", "/v1/a")
	if !ok || got.Sequence() != 0 {
		t.Fatalf("expected the earlier-created route to win ties, got seq=%d ok=%v", got.Sequence(), ok)
	}
}

func TestResolve_DisabledRoutesExcluded(t *testing.T) {
	r := httpRoute("GET", "/v1/a", 1, 0)
	r.Enabled = false
	_, ok := route.Resolve([]route.Route{r}, "GET", "/v1/a")
	if ok {
		t.Error("expected a disabled route to be excluded")
	}
}

func TestResolve_AppendModeMatchesPrefix(t *testing.T) {
	r := route.Route{
		MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{Methods: []string{"GET"}, Path: "/v1", PathSuffixMode: route.PathSuffixAppend}},
		Enabled:    true,
	}
	got, ok := route.Resolve([]route.Route{r}, "GET", "/v1/chat/completions")
	if !ok {
		t.Fatal("expected append-mode route to match a longer path")
	}
	if effective := route.EffectiveUpstreamPath(got.MatchRules.HTTP, "/v1/chat/completions"); effective != "/v1/chat/completions" {
		t.Errorf("EffectiveUpstreamPath = %q", effective)
	}
}

func TestResolve_DisabledModeRejectsSuffix(t *testing.T) {
	r := httpRoute("GET", "/v1/a", 1, 0)
	_, ok := route.Resolve([]route.Route{r}, "GET", "/v1/a/extra")
	if ok {
		t.Error("expected disabled path_suffix_mode to reject a non-exact path")
	}
}

func TestValidate_MatchRulesExactlyOneVariant(t *testing.T) {
	r := route.Route{}
	errs := route.Validate(r)
	if !hasRouteField(errs, "match_rules") {
		t.Errorf("expected a match_rules error when neither variant is set, got %+v", errs)
	}

	both := route.Route{MatchRules: route.MatchRule{
		HTTP: &route.HTTPMatch{Methods: []string{"GET"}, Path: "/x"},
		GRPC: &route.GRPCMatch{Service: "s", Method: "m"},
	}}
	errs = route.Validate(both)
	if !hasRouteField(errs, "match_rules") {
		t.Errorf("expected a match_rules error when both variants are set, got %+v", errs)
	}
}

func TestValidate_HTTPPathMustStartWithSlash(t *testing.T) {
	r := route.Route{MatchRules: route.MatchRule{HTTP: &route.HTTPMatch{Methods: []string{"GET"}, Path: "v1"}}}
	errs := route.Validate(r)
	if !hasRouteField(errs, "match_rules.http.path") {
		t.Errorf("expected a path error, got %+v", errs)
	}
}

func TestValidateQueryAllowlist_EmptyAllowsEverything(t *testing.T) {
	ok, _ := route.ValidateQueryAllowlist(nil, map[string][]string{"foo": {"bar"}})
	if !ok {
		t.Error("expected an empty allowlist to allow all params")
	}
}

func TestValidateQueryAllowlist_RejectsUnlistedKey(t *testing.T) {
	ok, offending := route.ValidateQueryAllowlist([]string{"model"}, map[string][]string{"model": {"gpt"}, "debug": {"1"}})
	if ok || offending != "debug" {
		t.Errorf("ok=%v offending=%q, want ok=false offending=debug", ok, offending)
	}
}

func hasRouteField(errs []route.FieldError, field string) bool {
	for _, e := range errs {
		if e.Field == field {
			return true
		}
	}
	return false
}
