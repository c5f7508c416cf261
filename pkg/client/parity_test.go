package client_test

import (
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/internal/actions"
	"github.com/rendis/conduit/pkg/contract"
)

type contractTypes struct {
	params reflect.Type
	result reflect.Type
}

var contracts = map[string]contractTypes{
	contract.ActionSummarizeThread:      {reflect.TypeOf(contract.SummarizeThreadParams{}), reflect.TypeOf(contract.ThreadSummary{})},
	contract.ActionExtractActionItems:   {reflect.TypeOf(contract.ExtractActionItemsParams{}), reflect.TypeOf(contract.ActionItems{})},
	contract.ActionSearchMessages:       {reflect.TypeOf(contract.SearchMessagesParams{}), reflect.TypeOf(contract.SearchResults{})},
	contract.ActionCategorizeMessage:    {reflect.TypeOf(contract.CategorizeMessageParams{}), reflect.TypeOf(contract.MessageCategory{})},
	contract.ActionTrackDecisions:       {reflect.TypeOf(contract.TrackDecisionsParams{}), reflect.TypeOf(contract.DecisionLog{})},
	contract.ActionDetectSchedulingNeed: {reflect.TypeOf(contract.DetectSchedulingNeedParams{}), reflect.TypeOf(contract.SchedulingAssessment{})},
	contract.ActionCheckCalendar:        {reflect.TypeOf(contract.CheckCalendarParams{}), reflect.TypeOf(contract.CalendarAvailability{})},
	contract.ActionSuggestMeetingTimes:  {reflect.TypeOf(contract.SuggestMeetingTimesParams{}), reflect.TypeOf(contract.MeetingSuggestions{})},
}

type jsonField struct {
	kind      reflect.Kind
	omitEmpty bool
}

func jsonFields(t reflect.Type) map[string]jsonField {
	fields := map[string]jsonField{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		fields[name] = jsonField{kind: f.Type.Kind(), omitEmpty: strings.Contains(opts, "omitempty")}
	}
	return fields
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestContract_CoversCatalog(t *testing.T) {
	catalog := actions.DefaultSchemaRegistry()
	assert.ElementsMatch(t, catalog.Names(), contract.AllActions)
	assert.ElementsMatch(t, catalog.Names(), sortedKeys(contracts))
}

func TestContract_ParamsMatchCatalog(t *testing.T) {
	for _, s := range actions.DefaultSchemaRegistry().List() {
		t.Run(s.Name, func(t *testing.T) {
			ct, ok := contracts[s.Name]
			require.True(t, ok, "no contract types for %s", s.Name)
			fields := jsonFields(ct.params)

			names := make([]string, 0, len(s.Parameters))
			for _, p := range s.Parameters {
				names = append(names, p.Name)
			}
			assert.ElementsMatch(t, names, sortedKeys(fields), "field set")

			for _, p := range s.Parameters {
				f, ok := fields[p.Name]
				if !ok {
					continue
				}
				assert.Equal(t, p.Required, !f.omitEmpty, "%s: required must match the absence of omitempty", p.Name)

				switch p.Kind {
				case actions.KindString, actions.KindDate, actions.KindEnum:
					assert.Equal(t, reflect.String, f.kind, p.Name)
				case actions.KindNumber:
					assert.Contains(t, []reflect.Kind{reflect.Int, reflect.Int64, reflect.Float64}, f.kind, p.Name)
				case actions.KindArray:
					assert.Equal(t, reflect.Slice, f.kind, p.Name)
				}
			}
		})
	}
}

func TestContract_ResultsMatchCatalog(t *testing.T) {
	for _, s := range actions.DefaultSchemaRegistry().List() {
		t.Run(s.Name, func(t *testing.T) {
			ct := contracts[s.Name]
			require.NotNil(t, ct.result)
			assert.Equal(t, s.Result.Name, ct.result.Name())

			var shape struct {
				Required   []string                   `json:"required"`
				Properties map[string]json.RawMessage `json:"properties"`
			}
			require.NoError(t, json.Unmarshal(s.Result.Schema, &shape))

			fields := jsonFields(ct.result)
			assert.ElementsMatch(t, sortedKeys(shape.Properties), sortedKeys(fields))
			for _, name := range shape.Required {
				assert.False(t, fields[name].omitEmpty, "%s is required and must not be omitempty", name)
			}
		})
	}
}
