package hotpepper

import (
	"strconv"
	"strings"
)

// looseInt accepts both 12 and "12"; the API mixes the two.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*n = 0
		return nil
	}
	*n = looseInt(v)
	return nil
}

type looseFloat float64

func (f *looseFloat) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*f = 0
		return nil
	}
	*f = looseFloat(v)
	return nil
}

type apiEnvelope struct {
	Results struct {
		ResultsAvailable looseInt  `json:"results_available"`
		ResultsReturned  looseInt  `json:"results_returned"`
		ResultsStart     looseInt  `json:"results_start"`
		Shop             []apiShop `json:"shop"`
		Error            []struct {
			Code    looseInt `json:"code"`
			Message string   `json:"message"`
		} `json:"error"`
	} `json:"results"`
}

type apiShop struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	NameKana    string     `json:"name_kana"`
	Address     string     `json:"address"`
	StationName string     `json:"station_name"`
	Access      string     `json:"access"`
	Open        string     `json:"open"`
	Close       string     `json:"close"`
	Catch       string     `json:"catch"`
	Capacity    looseInt   `json:"capacity"`
	PrivateRoom string     `json:"private_room"`
	Card        string     `json:"card"`
	NonSmoking  string     `json:"non_smoking"`
	Parking     string     `json:"parking"`
	Lat         looseFloat `json:"lat"`
	Lng         looseFloat `json:"lng"`
	URLs        struct {
		PC string `json:"pc"`
	} `json:"urls"`
	Photo struct {
		PC struct {
			L string `json:"l"`
			S string `json:"s"`
		} `json:"pc"`
	} `json:"photo"`
	Genre struct {
		Name string `json:"name"`
	} `json:"genre"`
	Budget struct {
		Name    string `json:"name"`
		Average string `json:"average"`
	} `json:"budget"`
}

func (s apiShop) flatten() Shop {
	return Shop{
		ID:            s.ID,
		Name:          s.Name,
		NameKana:      s.NameKana,
		Address:       s.Address,
		StationName:   s.StationName,
		Access:        s.Access,
		URL:           s.URLs.PC,
		Photo:         s.Photo.PC.L,
		PhotoSmall:    s.Photo.PC.S,
		Genre:         s.Genre.Name,
		Budget:        s.Budget.Name,
		BudgetAverage: s.Budget.Average,
		Open:          s.Open,
		Close:         s.Close,
		Catch:         s.Catch,
		Capacity:      int(s.Capacity),
		PrivateRoom:   s.PrivateRoom,
		Card:          s.Card,
		NonSmoking:    s.NonSmoking,
		Parking:       s.Parking,
		Lat:           float64(s.Lat),
		Lng:           float64(s.Lng),
	}
}
