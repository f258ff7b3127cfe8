package routes

import (
	"errors"
	"net/http"

	"github.com/OFFIS-RIT/aai-resources/internal/server/middleware"
	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"

	"github.com/labstack/echo/v4"
)

type ruleResponse struct {
	From           string `json:"from"`
	To             string `json:"to"`
	Label          string `json:"label"`
	Direction      string `json:"direction"`
	Multiplicity   string `json:"multiplicity"`
	Type           string `json:"type"`
	ContainsOtherV string `json:"contains-other-v"`
	DeleteOtherV   string `json:"delete-other-v"`
	SvcInfra       string `json:"SVC-INFRA"`
	PreventDelete  string `json:"prevent-delete"`
	Default        bool   `json:"default"`
	Description    string `json:"description,omitempty"`
}

func newRuleResponse(r edgerules.Rule) ruleResponse {
	return ruleResponse{
		From:           r.From,
		To:             r.To,
		Label:          r.Label,
		Direction:      r.Direction,
		Multiplicity:   string(r.Multiplicity),
		Type:           string(r.Type()),
		ContainsOtherV: r.ContainsOtherV,
		DeleteOtherV:   r.DeleteOtherV,
		SvcInfra:       r.SvcInfra,
		PreventDelete:  r.PreventDelete,
		Default:        r.Default,
		Description:    r.Description,
	}
}

func ResolveEdgeRuleHandler(c echo.Context) error {
	type resolveEdgeRuleParams struct {
		From  string `query:"from" validate:"required"`
		To    string `query:"to" validate:"required"`
		Label string `query:"label"`
		Type  string `query:"type" validate:"omitempty,oneof=TREE COUSIN"`
	}

	params := new(resolveEdgeRuleParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	resolver := c.(*middleware.AppContext).App.Resolver
	var rule edgerules.Rule
	var err error
	if params.Type != "" {
		rule, err = resolver.ResolveFor(params.From, params.To, edgerules.EdgeType(params.Type), params.Label)
	} else {
		rule, err = resolver.Resolve(params.From, params.To, params.Label)
	}
	switch {
	case errors.Is(err, edgerules.ErrRuleNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, edgerules.ErrAmbiguousRule):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, newRuleResponse(rule))
}

func GetEdgeRulesHandler(c echo.Context) error {
	type getEdgeRulesParams struct {
		From string `query:"from" validate:"required"`
		To   string `query:"to" validate:"required"`
	}

	params := new(getEdgeRulesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	table := c.(*middleware.AppContext).App.Resolver.Table()
	res := make([]ruleResponse, 0)
	for _, r := range table.All() {
		if r.Covers(params.From, params.To) {
			res = append(res, newRuleResponse(r.Orient(params.From, params.To)))
		}
	}

	return c.JSON(http.StatusOK, res)
}

func GetEdgeRuleSchemaHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, edgerules.FileSchema())
}
