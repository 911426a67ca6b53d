// Command shardmapctl is a small demonstration program exercising
// shardmap's ShardMapManager end to end against the in-memory reference
// GSM/LSM stores: it creates a range shard map, adds two shards, adds and
// splits a mapping, routes a key through OpenConnectionForKey, and locks
// and unlocks a mapping.
//
// It talks to no real database; a production caller supplies its own
// store.GlobalStore/store.LocalStore wrapping a real SQL driver in place
// of the in-memory stores constructed below.
package main

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap"
	"github.com/dreamware/shardmap/internal/mapper"
	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/shardkey"
	"github.com/dreamware/shardmap/internal/store"
)

func main() {
	ctx := context.Background()
	gsm := store.NewMemoryGlobalStore()
	lsm := store.NewMemoryLocalStore()
	mgr := shardmap.New(gsm, lsm)

	shardMapID := uuid.New()
	sm := model.ShardMap{ID: shardMapID, Name: "customers", Kind: model.MapKindRange, KeyKind: shardkey.KindInt32}
	if err := mgr.CreateShardMap(ctx, sm); err != nil {
		log.Fatalf("create shard map: %v", err)
	}
	log.Printf("created shard map %q (%s)", sm.Name, shardMapID)

	shardA := model.Shard{ID: uuid.New(), Version: uuid.New(), ShardMapID: shardMapID,
		Location: model.Location{Server: "sql1", Database: "custdb0", Protocol: "tcp", Port: 1433}, Status: model.ShardOnline}
	shardB := model.Shard{ID: uuid.New(), Version: uuid.New(), ShardMapID: shardMapID,
		Location: model.Location{Server: "sql1", Database: "custdb1", Protocol: "tcp", Port: 1433}, Status: model.ShardOnline}
	if err := mgr.AddShard(ctx, shardMapID, shardA); err != nil {
		log.Fatalf("add shard A: %v", err)
	}
	if err := mgr.AddShard(ctx, shardMapID, shardB); err != nil {
		log.Fatalf("add shard B: %v", err)
	}
	log.Printf("added shards at %s and %s", shardA.Location, shardB.Location)

	full := mustKey(0)
	top := mustKey(1000)
	rng, err := shardkey.NewRange(full, top)
	if err != nil {
		log.Fatalf("build range: %v", err)
	}
	mapping := model.Mapping{ID: uuid.New(), ShardMapID: shardMapID, Range: rng, Status: model.MappingOnline, Shard: shardA}
	if err := mgr.AddMapping(ctx, shardMapID, mapping); err != nil {
		log.Fatalf("add mapping: %v", err)
	}
	log.Printf("mapped [0, 1000) to %s", shardA.Location)

	mid := mustKey(500)
	left := model.Mapping{ID: uuid.New(), ShardMapID: shardMapID, Status: model.MappingOnline, Shard: shardA}
	right := model.Mapping{ID: uuid.New(), ShardMapID: shardMapID, Status: model.MappingOnline, Shard: shardA}
	left.Range, err = shardkey.NewRange(full, mid)
	if err != nil {
		log.Fatalf("build left range: %v", err)
	}
	right.Range, err = shardkey.NewRange(mid, top)
	if err != nil {
		log.Fatalf("build right range: %v", err)
	}
	if err := mgr.SplitMapping(ctx, shardMapID, mapping, left, right); err != nil {
		log.Fatalf("split mapping: %v", err)
	}
	log.Printf("split into [0, 500) and [500, 1000), both on %s", shardA.Location)

	conn, routed, err := mgr.OpenConnectionForKey(ctx, shardMapID, model.MapKindRange, mustKey(750), mapper.Options{Validate: true})
	if err != nil {
		log.Fatalf("open connection for key 750: %v", err)
	}
	log.Printf("key 750 routed to mapping %s (shard %s)", routed.ID, routed.Shard.Location)
	if err := conn.Close(); err != nil {
		log.Printf("close routed connection: %v", err)
	}

	owner := uuid.New()
	locked, err := mgr.Lock(ctx, shardMapID, right, owner)
	if err != nil {
		log.Fatalf("lock mapping: %v", err)
	}
	log.Printf("locked mapping %s for owner %s", locked.ID, owner)

	if _, err := mgr.Unlock(ctx, shardMapID, locked, owner); err != nil {
		log.Fatalf("unlock mapping: %v", err)
	}
	log.Printf("unlocked mapping %s", locked.ID)
}

func mustKey(v int32) model.Key {
	k, err := shardkey.FromValue(shardkey.KindInt32, v)
	if err != nil {
		log.Fatalf("build key %d: %v", v, err)
	}
	return k
}
