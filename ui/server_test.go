package ui

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"gamelearn/app"
	"gamelearn/domain/core"
	"gamelearn/domain/experiment"
	"gamelearn/domain/model"
)

func testReport() *app.AnalysisReport {
	centers := model.Centering{
		experiment.FactorGamified: {Factor: experiment.FactorGamified, Level0: "false", Level1: "true", Origin: 0.5},
		experiment.FactorGroup:    {Factor: experiment.FactorGroup, Level0: "A", Level1: "B", Origin: 0.5},
		experiment.FactorOrder:    {Factor: experiment.FactorOrder, Level0: "false", Level1: "true", Origin: 0.5},
	}
	fitted := &model.FittedModel{
		Outcome: "posttest_accuracy",
		Family:  model.FamilyBinomialLogit,
		Formula: model.FullFormula(),
		Centers: centers,
		Coefficients: []model.Coefficient{
			{Name: "(Intercept)", Estimate: 0.5, StdErr: 0.1, ZValue: 5, PValue: 1e-6},
			{Name: "gamified_c", Estimate: 0.8, StdErr: 0.2, ZValue: 4, PValue: 1e-4},
			{Name: "gamified_c:group_c", Estimate: 0, StdErr: math.NaN(), ZValue: math.NaN(), PValue: math.NaN()},
			{Name: "gamified_c:order_c", Estimate: 0, StdErr: 0.3, ZValue: 0, PValue: 1},
			{Name: "gamified_c:group_c:order_c", Estimate: 0, StdErr: 0.3, ZValue: 0, PValue: 1},
		},
		VarComps:   []model.VarianceComponent{{Name: "subject", Variance: 0.4}},
		Converged:  true,
		SampleSize: 640,
		Subjects:   32,
		FittedAt:   core.Now(),
	}
	tables, err := app.StandardQueries(fitted)
	if err != nil {
		panic(err)
	}
	return &app.AnalysisReport{
		RunID: core.NewRunID(),
		Results: []app.OutcomeResult{
			{Key: "posttest_accuracy", Model: fitted, Predictions: tables},
			{Key: "practice_rt", Err: errors.New("boom"), ErrMessage: "boom"},
		},
		CreatedAt: core.Now(),
	}
}

func testAggregates() []model.AggregateTable {
	return []model.AggregateTable{{
		Outcome:  "posttest_accuracy",
		KeyNames: []string{"gamified"},
		Rows: []model.AggregateRow{
			{Keys: []string{"false"}, Mean: 0.62, StdErr: 0.02, Count: 320},
			{Keys: []string{"true"}, Mean: 0.74, StdErr: math.NaN(), Count: 1},
		},
		Warnings: []model.WarningCode{model.WarningUndefinedStatistic},
	}}
}

func newTestServer() *httptest.Server {
	return httptest.NewServer(NewServer(testReport(), testAggregates(), nil).Router())
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestServer_Outcomes(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	var body struct {
		RunID    string `json:"run_id"`
		Outcomes []struct {
			Key    string `json:"key"`
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"outcomes"`
	}
	if code := getJSON(t, srv.URL+"/api/outcomes", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(body.Outcomes))
	}
	byKey := map[string]string{}
	for _, o := range body.Outcomes {
		byKey[o.Key] = o.Status
	}
	if byKey["posttest_accuracy"] != "fit" || byKey["practice_rt"] != "failed" {
		t.Errorf("statuses = %v", byKey)
	}
}

func TestServer_Coefficients(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	var body struct {
		Coefficients []model.Coefficient `json:"coefficients"`
	}
	if code := getJSON(t, srv.URL+"/api/outcomes/posttest_accuracy/coefficients", &body); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(body.Coefficients) != 5 {
		t.Fatalf("got %d coefficients", len(body.Coefficients))
	}
	// NaN inference travels as null and decodes back to NaN
	if !math.IsNaN(body.Coefficients[2].StdErr) {
		t.Errorf("undefined stderr decoded as %g", body.Coefficients[2].StdErr)
	}

	if code := getJSON(t, srv.URL+"/api/outcomes/nope/coefficients", nil); code != http.StatusNotFound {
		t.Errorf("unknown outcome status %d, want 404", code)
	}
	if code := getJSON(t, srv.URL+"/api/outcomes/practice_rt/coefficients", nil); code != http.StatusConflict {
		t.Errorf("failed outcome status %d, want 409", code)
	}
}

func TestServer_Predict(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	body := `{"name":"gamified","fixed":{"group":0,"order":0},"sweep":{"gamified":[-0.5,0.5]}}`
	resp, err := http.Post(srv.URL+"/api/outcomes/posttest_accuracy/predict", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var table model.PredictionTable
	if err := json.NewDecoder(resp.Body).Decode(&table); err != nil {
		t.Fatal(err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(table.Rows))
	}
	for _, row := range table.Rows {
		if row.Response <= 0 || row.Response >= 1 {
			t.Errorf("probability out of range: %g", row.Response)
		}
	}

	// A query referencing a covariate outside the formula is a client error
	bad := `{"sweep":{"speed":[1,2]}}`
	resp, err = http.Post(srv.URL+"/api/outcomes/posttest_accuracy/predict", "application/json", strings.NewReader(bad))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status %d, want 400", resp.StatusCode)
	}
}

func TestServer_ReportAndAggregates(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	var tables []model.AggregateTable
	if code := getJSON(t, srv.URL+"/api/aggregates", &tables); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if len(tables) != 1 || len(tables[0].Rows) != 2 {
		t.Fatalf("unexpected aggregates: %+v", tables)
	}

	resp, err := http.Get(srv.URL + "/report")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type %q", ct)
	}
}
