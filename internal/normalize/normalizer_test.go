package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type NormalizerSuite struct {
	suite.Suite
	gazetteer  *Gazetteer
	normalizer *Normalizer
}

func (s *NormalizerSuite) SetupTest() {
	g, err := DefaultGazetteer()
	s.Require().NoError(err)
	s.gazetteer = g

	n, err := New(g, DefaultOptions())
	s.Require().NoError(err)
	s.normalizer = n
}

func TestNormalizerSuite(t *testing.T) {
	suite.Run(t, new(NormalizerSuite))
}

func (s *NormalizerSuite) TestCanonicalNamesAreIdempotent() {
	s.Run("states", func() {
		for _, state := range s.gazetteer.States() {
			m := s.normalizer.State(state)
			s.Equal(state, m.Name)
			s.Equal(1.0, m.Confidence)
			s.Equal(MethodExact, m.Method)
		}
	})

	s.Run("listed and known districts", func() {
		for _, state := range s.gazetteer.States() {
			for _, district := range s.gazetteer.KnownDistricts(state) {
				m := s.normalizer.District(district, state)
				s.Equal(district, m.Name, "state %s", state)
				s.Equal(1.0, m.Confidence)
			}
		}
	})
}

func (s *NormalizerSuite) TestStateAliases() {
	cases := map[string]string{
		"Orissa":                    "Odisha",
		"ODISHA":                    "Odisha",
		"West  Bengal":              "West Bengal",
		"Westbengal":                "West Bengal",
		"Jammu & Kashmir":           "Jammu and Kashmir",
		"Andaman & Nicobar Islands": "Andaman and Nicobar Islands",
		"DNH and DD":                "Dadra and Nagar Haveli and Daman and Diu",
		"Daman & Diu":               "Dadra and Nagar Haveli and Daman and Diu",
		"Pondicherry":               "Puducherry",
		"Uttaranchal":               "Uttarakhand",
		"Jaipur":                    "Rajasthan",
		"BALANAGAR":                 "Telangana",
	}
	for raw, want := range cases {
		m := s.normalizer.State(raw)
		s.Equal(want, m.Name, raw)
		s.Equal(1.0, m.Confidence, raw)
	}

	s.Equal(MethodAlias, s.normalizer.State("Orissa").Method)
	s.Equal(MethodExact, s.normalizer.State("  west bengal ").Method)
}

func (s *NormalizerSuite) TestRejectedAndEmptyNames() {
	m := s.normalizer.State("100000")
	s.False(m.Resolved())
	s.Equal(MethodRejected, m.Method)

	m = s.normalizer.State("  ... ")
	s.False(m.Resolved())
	s.Equal(MethodNone, m.Method)
}

func (s *NormalizerSuite) TestFuzzyFallback() {
	s.Run("close misspelling resolves", func() {
		m := s.normalizer.State("Karnatka")
		s.Equal("Karnataka", m.Name)
		s.Equal(MethodFuzzy, m.Method)
		s.GreaterOrEqual(m.Confidence, 0.85)
		s.Less(m.Confidence, 1.0)
	})

	s.Run("distant spelling stays unresolved", func() {
		m := s.normalizer.State("Krntk")
		s.False(m.Resolved())
		s.Equal(MethodNone, m.Method)
		s.Less(m.Confidence, 0.85)
	})

	s.Run("district within state context", func() {
		m := s.normalizer.District("Tumkuru", "Karnataka")
		s.Equal("Tumakuru", m.Name)
		s.Equal(MethodFuzzy, m.Method)
	})
}

func (s *NormalizerSuite) TestDistrictLookup() {
	s.Run("per-state alias", func() {
		m := s.normalizer.District("Bangalore", "Karnataka")
		s.Equal("Bengaluru Urban", m.Name)
		s.Equal(MethodAlias, m.Method)
	})

	s.Run("punctuation variants", func() {
		s.Equal("S.A.S. Nagar", s.normalizer.District("S.A.S Nagar", "Punjab").Name)
		s.Equal("Vijayapura", s.normalizer.District("Bijapur(KAR)", "Karnataka").Name)
	})

	s.Run("alias in an open state", func() {
		m := s.normalizer.District("Allahabad", "Uttar Pradesh")
		s.Equal("Prayagraj", m.Name)
		s.Equal(1.0, m.Confidence)
	})

	s.Run("unresolved state context short-circuits", func() {
		m := s.normalizer.District("Mysuru", "Unresolved")
		s.False(m.Resolved())
		m = s.normalizer.District("Mysuru", "")
		s.False(m.Resolved())
	})

	s.Run("aliases do not leak across states", func() {
		m := s.normalizer.District("Bangalore", "Kerala")
		s.NotEqual("Bengaluru Urban", m.Name)
	})
}

func (s *NormalizerSuite) TestOpenStatePassthrough() {
	m := s.normalizer.District("north  west*", "Delhi")
	s.Equal("North West", m.Name)
	s.Equal(PassthroughConfidence, m.Confidence)
	s.Equal(MethodPassthrough, m.Method)

	opts := DefaultOptions()
	opts.AllowUnlistedDistricts = false
	strict, err := New(s.gazetteer, opts)
	s.Require().NoError(err)
	s.False(strict.District("North West", "Delhi").Resolved())
}

func (s *NormalizerSuite) TestOpenStateMatchesKnownNamesFirst() {
	s.Run("misspelling of a known district", func() {
		m := s.normalizer.District("Purniya", "Bihar")
		s.Equal("Purnia", m.Name)
		s.Equal(MethodFuzzy, m.Method)
		s.GreaterOrEqual(m.Confidence, 0.85)
	})

	s.Run("spelling variants share one key", func() {
		a := s.normalizer.District("Muzzafarpur", "Bihar")
		b := s.normalizer.District("MUZAFFARPUR", "Bihar")
		s.Equal("Muzaffarpur", a.Name)
		s.Equal(a.Name, b.Name)
	})

	s.Run("alias target of a state without known names", func() {
		m := s.normalizer.District("Prayagrj", "Uttar Pradesh")
		s.Equal("Prayagraj", m.Name)
		s.Equal(MethodFuzzy, m.Method)
	})

	s.Run("unknown name still passes through", func() {
		m := s.normalizer.District("Rajgir Hills", "Bihar")
		s.Equal("Rajgir Hills", m.Name)
		s.Equal(MethodPassthrough, m.Method)
		s.Equal(PassthroughConfidence, m.Confidence)
	})
}

func (s *NormalizerSuite) TestSingleSharedWordIsNotAMatch() {
	m := s.normalizer.District("Nagar", "Uttarakhand")
	s.NotEqual("Udham Singh Nagar", m.Name)
	s.NotEqual(MethodFuzzy, m.Method)

	m = s.normalizer.District("Udham Singh Nagar", "Uttarakhand")
	s.Equal("Udham Singh Nagar", m.Name)
	s.Equal(1.0, m.Confidence)
}

func (s *NormalizerSuite) TestConsolidate() {
	remap := s.normalizer.Consolidate([]string{"Shahdara", "Shahdra", "North West", "SHAHDARA", "Nagar", "North Wst"})
	s.Equal(map[string]string{
		"Shahdra":   "Shahdara",
		"SHAHDARA":  "Shahdara",
		"North Wst": "North West",
	}, remap)
	s.Empty(s.normalizer.Consolidate(nil))
}

func (s *NormalizerSuite) TestAmbiguousTieIsUnresolved() {
	m := s.normalizer.District("Goa", "Goa")
	s.False(m.Resolved())
}

func (s *NormalizerSuite) TestWithDistricts() {
	s.Run("extends an open state", func() {
		g, err := s.gazetteer.WithDistricts("Delhi", "New Delhi", "North West", "new delhi")
		s.Require().NoError(err)
		s.True(g.IsOpen("Delhi"))
		s.Empty(g.Districts("Delhi"))
		s.Equal([]string{"New Delhi", "North West"}, g.KnownDistricts("Delhi"))
		s.Empty(s.gazetteer.KnownDistricts("Delhi"), "original is unchanged")

		n, err := New(g, DefaultOptions())
		s.Require().NoError(err)
		s.Equal("New Delhi", n.District("NEW DELHI", "Delhi").Name)
		s.Equal(MethodFuzzy, n.District("North Wst", "Delhi").Method)
		s.Equal(MethodPassthrough, n.District("Shahdara", "Delhi").Method)
	})

	s.Run("extends a closed state", func() {
		g, err := s.gazetteer.WithDistricts("Goa", "Central Goa")
		s.Require().NoError(err)
		s.False(g.IsOpen("Goa"))
		s.Equal([]string{"Central Goa", "North Goa", "South Goa"}, g.Districts("Goa"))
	})

	s.Run("keeps alias targets of an open state", func() {
		g, err := s.gazetteer.WithDistricts("Uttar Pradesh", "Lucknow")
		s.Require().NoError(err)
		n, err := New(g, DefaultOptions())
		s.Require().NoError(err)
		s.Equal("Prayagraj", n.District("Allahabad", "Uttar Pradesh").Name)
		s.Equal("Lucknow", n.District("lucknow", "Uttar Pradesh").Name)
	})

	s.Run("skips names already known by alias", func() {
		g, err := s.gazetteer.WithDistricts("Karnataka", "Bangalore")
		s.Require().NoError(err)
		s.Equal(s.gazetteer.Districts("Karnataka"), g.Districts("Karnataka"))
	})

	s.Run("unknown state", func() {
		_, err := s.gazetteer.WithDistricts("Atlantis", "X")
		s.Error(err)
	})
}

type fixedSimilarity float64

func (f fixedSimilarity) Score(string, string) float64 { return float64(f) }

func TestThresholdBoundary(t *testing.T) {
	g, err := NewGazetteer(GazetteerFile{States: []StateEntry{{Name: "Alpha"}}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		score    float64
		resolved bool
	}{
		{"at threshold", 0.85, true},
		{"above threshold", 0.97, true},
		{"just below", 0.8499, false},
		{"far below", 0.2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Similarity = fixedSimilarity(tt.score)
			n, err := New(g, opts)
			require.NoError(t, err)

			m := n.State("something else")
			assert.Equal(t, tt.resolved, m.Resolved())
			if tt.resolved {
				assert.Equal(t, "Alpha", m.Name)
				assert.Equal(t, tt.score, m.Confidence)
			}
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	assert.Error(t, err)

	g, err := NewGazetteer(GazetteerFile{States: []StateEntry{{Name: "Alpha"}}})
	require.NoError(t, err)
	opts := DefaultOptions()
	opts.Threshold = 0
	_, err = New(g, opts)
	assert.Error(t, err)
}

func TestGazetteerConflicts(t *testing.T) {
	tests := []struct {
		name string
		file GazetteerFile
	}{
		{
			name: "state alias claimed twice",
			file: GazetteerFile{States: []StateEntry{
				{Name: "Alpha", Aliases: []string{"Shared"}},
				{Name: "Beta", Aliases: []string{"shared"}},
			}},
		},
		{
			name: "district alias to unlisted district",
			file: GazetteerFile{States: []StateEntry{
				{Name: "Alpha", Districts: []string{"One"}, DistrictAliases: map[string]string{"uno": "Two"}},
			}},
		},
		{
			name: "known districts on a listed state",
			file: GazetteerFile{States: []StateEntry{
				{Name: "Alpha", Districts: []string{"One"}, KnownDistricts: []string{"Two"}},
			}},
		},
		{
			name: "duplicate state",
			file: GazetteerFile{States: []StateEntry{{Name: "Alpha"}, {Name: "Alpha"}}},
		},
		{
			name: "empty state name",
			file: GazetteerFile{States: []StateEntry{{Name: " - "}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGazetteer(tt.file)
			assert.Error(t, err)
		})
	}
}

func TestDefaultGazetteer(t *testing.T) {
	g, err := DefaultGazetteer()
	require.NoError(t, err)
	assert.Equal(t, "India", g.Country())
	assert.Len(t, g.States(), 36)
	assert.True(t, g.HasState("Karnataka"))
	assert.False(t, g.HasState("Unresolved"))
	assert.Len(t, g.Districts("Karnataka"), 31)
	assert.True(t, g.IsOpen("Bihar"))
	assert.Empty(t, g.Districts("Bihar"))
	assert.Len(t, g.KnownDistricts("Bihar"), 38)
	assert.Equal(t, g.Districts("Karnataka"), g.KnownDistricts("Karnataka"))
}

func TestParseGazetteer(t *testing.T) {
	g, err := ParseGazetteer([]byte(`
country: Testland
states:
  - name: North Province
    aliases: [N Prov]
    districts: [Capital]
`))
	require.NoError(t, err)
	n, err := New(g, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "North Province", n.State("n prov").Name)
	assert.Equal(t, "Capital", n.District("CAPITAL", "North Province").Name)

	_, err = ParseGazetteer([]byte("states: ["))
	assert.Error(t, err)
}
