package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"propertyescrow/core/events"
	"propertyescrow/native/escrow"
	"propertyescrow/native/monetary"
	"propertyescrow/observability/logging"
)

// scenario is a scripted escrow lifecycle. Amounts are decimal strings in
// whole currency units.
type scenario struct {
	Height uint64 `yaml:"height"`
	Steps  []step `yaml:"steps"`
}

type step struct {
	Op          string   `yaml:"op"`
	Ref         string   `yaml:"ref"`
	Property    string   `yaml:"property"`
	Currency    string   `yaml:"currency"`
	Price       string   `yaml:"price"`
	Buyer       string   `yaml:"buyer"`
	Seller      string   `yaml:"seller"`
	Conditions  []string `yaml:"conditions"`
	Expiry      uint64   `yaml:"expiry"`
	Actor       string   `yaml:"actor"`
	Amount      string   `yaml:"amount"`
	Index       int      `yaml:"index"`
	Met         *bool    `yaml:"met"`
	Blocks      uint64   `yaml:"blocks"`
	ExpectError string   `yaml:"expect_error"`
	ExpectState string   `yaml:"expect_state"`
}

type stepResult struct {
	Index   int    `json:"index"`
	Op      string `json:"op"`
	Ref     string `json:"ref,omitempty"`
	OK      bool   `json:"ok"`
	Matched bool   `json:"matched"`
	State   string `json:"state,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Error   string `json:"error,omitempty"`
	Expired int    `json:"expired,omitempty"`
}

type eventResult struct {
	Type       string            `json:"type"`
	EscrowID   string            `json:"escrowId"`
	Attributes map[string]string `json:"attributes"`
}

type simulationResult struct {
	Height  uint64           `json:"height"`
	Steps   []stepResult     `json:"steps"`
	Escrows []escrow.Details `json:"escrows"`
	Events  []eventResult    `json:"events"`
}

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	sc := &scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return sc, nil
}

func runSimulate(args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("simulate", stderr)
	scenarioPath := fs.String("scenario", "", "path to a YAML scenario")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if err := requireFlags("scenario", *scenarioPath); err != nil {
		return printError(stderr, err)
	}
	cfg, money, err := loadMonetary(*configPath)
	if err != nil {
		return printError(stderr, err)
	}
	sc, err := loadScenario(*scenarioPath)
	if err != nil {
		return printError(stderr, err)
	}
	policy, err := cfg.EscrowPolicy()
	if err != nil {
		return printError(stderr, err)
	}
	logOpts, err := cfg.LogOptions()
	if err != nil {
		return printError(stderr, err)
	}

	height := escrow.NewManualHeight(sc.Height)
	engine, err := escrow.NewEngine(money, height, policy)
	if err != nil {
		return printError(stderr, err)
	}
	recorder := &events.Recorder{}
	engine.SetEmitter(recorder)
	engine.SetPauses(cfg.Pauses())
	engine.SetLogger(logging.New(stderr, logOpts))
	engine.SetNowFunc(cliNow)

	sim := &simulation{engine: engine, money: money, height: height, refs: make(map[string]string)}
	result := simulationResult{}
	mismatches := 0
	for i, st := range sc.Steps {
		res := sim.apply(i, st)
		if !res.Matched {
			mismatches++
		}
		result.Steps = append(result.Steps, res)
	}
	result.Height = height.CurrentHeight()
	for _, tx := range engine.List() {
		result.Escrows = append(result.Escrows, escrow.Describe(money, tx, result.Height))
	}
	for _, evt := range recorder.Events() {
		if e, ok := evt.(escrow.Event); ok {
			result.Events = append(result.Events, eventResult{Type: e.Type, EscrowID: e.EscrowID, Attributes: e.Attributes})
		}
	}
	if code := writeJSON(stdout, result); code != 0 {
		return code
	}
	if mismatches > 0 {
		fmt.Fprintf(stderr, "Error: %d step(s) did not match expectations\n", mismatches)
		return 1
	}
	return 0
}

type simulation struct {
	engine *escrow.Engine
	money  *monetary.Engine
	height *escrow.ManualHeight
	refs   map[string]string
}

func (s *simulation) apply(index int, st step) stepResult {
	res := stepResult{Index: index, Op: st.Op, Ref: st.Ref}
	tx, expired, err := s.exec(st)
	if err != nil {
		res.Error = err.Error()
		res.Kind = string(escrow.Kind(err))
	} else {
		res.OK = true
		res.Expired = expired
	}
	if tx != nil {
		res.State = tx.State.String()
	} else if id, ok := s.refs[st.Ref]; ok {
		if current, getErr := s.engine.Get(id); getErr == nil {
			res.State = current.State.String()
		}
	}
	res.Matched = matches(st, res)
	return res
}

func matches(st step, res stepResult) bool {
	want := strings.TrimSpace(st.ExpectError)
	switch {
	case want == "" && !res.OK:
		return false
	case want != "" && !strings.EqualFold(want, res.Kind):
		return false
	}
	if want := strings.TrimSpace(st.ExpectState); want != "" && !strings.EqualFold(want, res.State) {
		return false
	}
	return true
}

func (s *simulation) resolve(ref string) (string, error) {
	id, ok := s.refs[strings.TrimSpace(ref)]
	if !ok {
		return "", fmt.Errorf("%w: unknown ref %q", escrow.ErrNotFound, ref)
	}
	return id, nil
}

// actor maps the role names "buyer" and "seller" onto the escrow's parties;
// anything else is used as a principal verbatim.
func (s *simulation) actor(id, who string) string {
	tx, err := s.engine.Get(id)
	if err != nil {
		return who
	}
	switch strings.ToLower(strings.TrimSpace(who)) {
	case "buyer":
		return tx.Buyer
	case "seller":
		return tx.Seller
	default:
		return who
	}
}

func (s *simulation) amount(raw, currency string) (*big.Int, error) {
	units, err := s.money.ToBaseUnits(raw, monetary.Symbol(currency))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", escrow.ErrValidationFailed, err)
	}
	return units, nil
}

func (s *simulation) exec(st step) (*escrow.Transaction, int, error) {
	op := strings.ToLower(strings.TrimSpace(st.Op))
	switch op {
	case "advance":
		s.height.Advance(st.Blocks)
		return nil, 0, nil
	case "expire":
		return nil, len(s.engine.ExpireNow()), nil
	case "create":
		price, err := s.amount(st.Price, st.Currency)
		if err != nil {
			return nil, 0, err
		}
		tx, err := s.engine.Create(escrow.CreateParams{
			PropertyID:    st.Property,
			Currency:      monetary.Symbol(st.Currency),
			PurchasePrice: price,
			Buyer:         st.Buyer,
			Seller:        st.Seller,
			Conditions:    st.Conditions,
			ExpiryHeight:  st.Expiry,
		})
		if err != nil {
			return nil, 0, err
		}
		if ref := strings.TrimSpace(st.Ref); ref != "" {
			s.refs[ref] = tx.ID
		}
		return tx, 0, nil
	}

	id, err := s.resolve(st.Ref)
	if err != nil {
		return nil, 0, err
	}
	actor := s.actor(id, st.Actor)
	var tx *escrow.Transaction
	switch op {
	case "assign_seller":
		tx, err = s.engine.AssignSeller(id, actor, st.Seller)
	case "fund":
		current, getErr := s.engine.Get(id)
		if getErr != nil {
			return nil, 0, getErr
		}
		deposit, amountErr := s.amount(st.Amount, current.Currency.String())
		if amountErr != nil {
			return nil, 0, amountErr
		}
		tx, err = s.engine.Fund(id, actor, deposit)
	case "sign":
		tx, err = s.engine.Sign(id, actor)
	case "mark":
		met := true
		if st.Met != nil {
			met = *st.Met
		}
		tx, err = s.engine.MarkCondition(id, st.Index, met)
	case "complete":
		tx, err = s.engine.Complete(id, actor)
	case "refund":
		tx, err = s.engine.Refund(id, actor)
	default:
		return nil, 0, errors.New("unknown op " + st.Op)
	}
	return tx, 0, err
}
