package puzzle

import (
	"context"
)

const LoginMutation = `
mutation Login($domainName: String, $username: String!, $password: String!) {
  login(domainName: $domainName, username: $username, password: $password)
}
`

const GetProjectsQuery = `
query GetProjects {
  projects {
    id
    title
    doneAt
  }
}
`

const OnProjectsUpdatedSubscription = `
subscription OnProjectsUpdated {
  projectsUpdated {
    id
    title
    doneAt
  }
}
`

const OnProductsUpdatedSubscription = `
subscription OnProductsUpdated {
  productsUpdated {
    id
    name
    projectId
  }
}
`

// Project is an entry of the projects query, DoneAt is nil while the project is open.
type Project struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	DoneAt *string `json:"doneAt"`
}

// ActiveProjects keeps the projects that are not done yet.
func ActiveProjects(projects []Project) []Project {
	active := make([]Project, 0, len(projects))
	for _, p := range projects {
		if p.DoneAt == nil {
			active = append(active, p)
		}
	}
	return active
}

// GetProjects runs the projects query with the session cookies.
func (s *Session) GetProjects(ctx context.Context) ([]Project, error) {
	data := struct {
		Projects []Project `json:"projects"`
	}{}
	if err := s.Do(ctx, &data, Request{
		Query:         GetProjectsQuery,
		OperationName: "GetProjects",
	}); err != nil {
		return nil, err
	}
	return data.Projects, nil
}

// OnProjectsUpdated subscribes to project changes.
func (s *Session) OnProjectsUpdated(ctx context.Context, opts ...SubscribeOption) (*Subscription, error) {
	return s.Subscribe(ctx, Request{
		Query:         OnProjectsUpdatedSubscription,
		OperationName: "OnProjectsUpdated",
	}, opts...)
}

// OnProductsUpdated subscribes to product changes.
func (s *Session) OnProductsUpdated(ctx context.Context, opts ...SubscribeOption) (*Subscription, error) {
	return s.Subscribe(ctx, Request{
		Query:         OnProductsUpdatedSubscription,
		OperationName: "OnProductsUpdated",
	}, opts...)
}
