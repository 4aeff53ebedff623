package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

func siteMap(s domain.Site, state domain.SiteState) map[string]interface{} {
	return map[string]interface{}{
		"id":            s.ID,
		"name":          s.Name,
		"latitude":      s.Latitude,
		"longitude":     s.Longitude,
		"radius_meters": s.RadiusMeters,
		"state":         state.String(),
	}
}

func motionMap(s domain.MotionSample) map[string]interface{} {
	return map[string]interface{}{
		"kind":       s.Kind.String(),
		"confidence": s.ConfidencePercent,
	}
}

// buildSchema creates the read-only GraphQL schema over the engine.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	motionSampleType := graphql.NewObject(graphql.ObjectConfig{
		Name: "MotionSample",
		Fields: graphql.Fields{
			"kind":       &graphql.Field{Type: graphql.String},
			"confidence": &graphql.Field{Type: graphql.Int},
		},
	})

	motionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Motion",
		Fields: graphql.Fields{
			"sample":     &graphql.Field{Type: motionSampleType},
			"in_vehicle": &graphql.Field{Type: graphql.Boolean},
			"on_foot":    &graphql.Field{Type: graphql.Boolean},
			"still":      &graphql.Field{Type: graphql.Boolean},
			"tracking":   &graphql.Field{Type: graphql.Boolean},
		},
	})

	siteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Site",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"name":          &graphql.Field{Type: graphql.String},
			"latitude":      &graphql.Field{Type: graphql.Float},
			"longitude":     &graphql.Field{Type: graphql.Float},
			"radius_meters": &graphql.Field{Type: graphql.Float},
			"state":         &graphql.Field{Type: graphql.String},
		},
	})

	regionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Region",
		Fields: graphql.Fields{
			"id":            &graphql.Field{Type: graphql.String},
			"latitude":      &graphql.Field{Type: graphql.Float},
			"longitude":     &graphql.Field{Type: graphql.Float},
			"radius_meters": &graphql.Field{Type: graphql.Float},
		},
	})

	transitionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Transition",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"site_id":     &graphql.Field{Type: graphql.String},
			"kind":        &graphql.Field{Type: graphql.String},
			"observed_at": &graphql.Field{Type: graphql.String},
			"motion":      &graphql.Field{Type: motionSampleType},
		},
	})

	syncType := graphql.NewObject(graphql.ObjectConfig{
		Name: "SyncStatus",
		Fields: graphql.Fields{
			"at":      &graphql.Field{Type: graphql.String},
			"ok":      &graphql.Field{Type: graphql.Boolean},
			"regions": &graphql.Field{Type: graphql.Int},
			"reason":  &graphql.Field{Type: graphql.String},
			"source":  &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"sites": &graphql.Field{
				Type:        graphql.NewList(siteType),
				Description: "Sites known to the engine",
				Args: graphql.FieldConfigArgument{
					"insideOnly": &graphql.ArgumentConfig{Type: graphql.Boolean, DefaultValue: false},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					insideOnly := p.Args["insideOnly"].(bool)
					arbiter := deps.Engine.Arbiter()
					var out []map[string]interface{}
					for _, s := range deps.Engine.Catalog().Sites() {
						st := arbiter.State(s.ID)
						if insideOnly && st != domain.Inside {
							continue
						}
						out = append(out, siteMap(s, st))
					}
					return out, nil
				},
			},
			"site": &graphql.Field{
				Type:        siteType,
				Description: "Get a site by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					s, ok := deps.Engine.Catalog().Site(id)
					if !ok {
						return nil, nil
					}
					return siteMap(s, deps.Engine.Arbiter().State(id)), nil
				},
			},
			"regions": &graphql.Field{
				Type:        graphql.NewList(regionType),
				Description: "Regions registered with the facility",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Engine.Registry().Regions(), nil
				},
			},
			"motion": &graphql.Field{
				Type:        motionType,
				Description: "Current motion classification",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					v := motionView(deps.Engine)
					return map[string]interface{}{
						"sample":     motionMap(v.Sample),
						"in_vehicle": v.InVehicle,
						"on_foot":    v.OnFoot,
						"still":      v.Still,
						"tracking":   v.Tracking,
					}, nil
				},
			},
			"lastSync": &graphql.Field{
				Type:        syncType,
				Description: "Outcome of the most recent sync cycle",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					s := deps.Engine.LastSync()
					m := map[string]interface{}{
						"ok":      s.OK,
						"regions": s.Regions,
						"reason":  s.Reason,
						"source":  s.Source,
					}
					if !s.At.IsZero() {
						m["at"] = s.At.UTC().Format(time.RFC3339)
					}
					return m, nil
				},
			},
			"transitions": &graphql.Field{
				Type:        graphql.NewList(transitionType),
				Description: "Recorded transitions of a site, newest first",
				Args: graphql.FieldConfigArgument{
					"siteId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Transitions == nil {
						return nil, nil
					}
					siteID := p.Args["siteId"].(string)
					limit := p.Args["limit"].(int)
					events, err := deps.Transitions.ListBySite(p.Context, siteID, limit)
					if err != nil {
						return nil, err
					}
					result := make([]map[string]interface{}, len(events))
					for i, ev := range events {
						result[i] = map[string]interface{}{
							"id":          ev.ID,
							"site_id":     ev.SiteID,
							"kind":        string(ev.Kind),
							"observed_at": ev.ObservedAt.UTC().Format(time.RFC3339),
							"motion":      motionMap(ev.Motion),
						}
					}
					return result, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
